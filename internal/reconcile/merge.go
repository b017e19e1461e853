package reconcile

import (
	"fmt"
	"sort"

	"github.com/chatvault/chatvault/internal/archive"
	"github.com/chatvault/chatvault/internal/model"
)

// Merge folds src into a dst that already has content. Source accounts are
// resolved against dst (absorbed when (service, name) and the
// identity/regular classification both match, otherwise placed under a
// matching or freshly created contact with * appended at whichever level
// collided), then conversations are deduplicated by a date merge-join on
// the mapped account pair, the copy with strictly more replies winning.
// Unless accountingOnly, all surviving source conversations are imported
// with accounts translated. One MajorChange event fires at the end.
func (e *Engine) Merge(dst, src *archive.Archive, accountingOnly bool) error {
	e.log.Info().Bool("accounting_only", accountingOnly).Msg("merge started")
	return dst.Batch(func() error {
		// Groups whose contacts all get absorbed elsewhere would otherwise
		// vanish; copy the currently-empty ones up front.
		for _, g := range src.Groups() {
			if g.ID == src.IdentitiesGroupID() || len(src.ContactsIn(g.ID)) > 0 {
				continue
			}
			if _, err := dst.CreateGroup(g.Name); err != nil {
				return fmt.Errorf("merge: %w", err)
			}
		}

		mapping, err := e.resolveAccounts(dst, src)
		if err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		if accountingOnly {
			return nil
		}
		if err := e.mergeConversations(dst, src, mapping); err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		return nil
	})
}

// resolveAccounts maps every src account to a dst account, creating
// contacts, groups and accounts as needed.
func (e *Engine) resolveAccounts(dst, src *archive.Archive) (map[model.ID]model.ID, error) {
	mapping := make(map[model.ID]model.ID)
	for _, g := range src.Groups() {
		for _, c := range src.ContactsIn(g.ID) {
			identity := g.ID == src.IdentitiesGroupID()
			for _, acc := range src.AccountsOf(c.ID) {
				resolved, err := e.resolveAccount(dst, g, c, acc, identity)
				if err != nil {
					return nil, err
				}
				mapping[acc.ID] = resolved
			}
		}
	}
	e.log.Debug().Int("accounts", len(mapping)).Msg("account resolution done")
	return mapping, nil
}

func (e *Engine) resolveAccount(dst *archive.Archive, srcGroup model.Group, srcContact model.Contact, srcAccount model.Account, identity bool) (model.ID, error) {
	// Full absorption: same key, same classification.
	if existing, ok := dst.AccountByKey(srcAccount.Key()); ok && dst.IsIdentityAccount(existing.ID) == identity {
		return existing.ID, nil
	}

	// A dst contact with the same name and classification takes the account.
	if existing, ok := dst.ContactByName(srcContact.Name); ok && dst.IsIdentityContact(existing.ID) == identity {
		return createDisambiguatedAccount(dst, existing.ID, srcAccount)
	}

	// New contact under the source's original group, both names
	// disambiguated with * at whichever level collided.
	groupID := dst.IdentitiesGroupID()
	if !identity {
		g, err := dst.CreateGroup(srcGroup.Name)
		if err != nil {
			return 0, err
		}
		groupID = g.ID
	}
	name := srcContact.Name
	for {
		if _, taken := dst.ContactByName(name); !taken {
			break
		}
		name += "*"
	}
	contact, err := dst.CreateContact(groupID, name)
	if err != nil {
		return 0, err
	}
	return createDisambiguatedAccount(dst, contact.ID, srcAccount)
}

func createDisambiguatedAccount(dst *archive.Archive, contactID model.ID, srcAccount model.Account) (model.ID, error) {
	name := srcAccount.Name
	for {
		if _, taken := dst.AccountByKey(model.AccountKey{Service: srcAccount.Service, Name: name}); !taken {
			break
		}
		name += "*"
	}
	acc, err := dst.CreateAccount(contactID, srcAccount.Service, name)
	if err != nil {
		return 0, err
	}
	return acc.ID, nil
}

// mergeConversations walks both conversation lists ordered by dateStarted
// and matches same-date entries on the mapped (local, remote) pair. The
// copy with strictly more replies wins; ties keep dst. Losing dst
// conversations are deleted, surviving src conversations imported.
func (e *Engine) mergeConversations(dst, src *archive.Archive, mapping map[model.ID]model.ID) error {
	dstConvs := dst.Conversations()
	srcConvs := src.Conversations()
	sort.SliceStable(dstConvs, func(i, j int) bool { return dstConvs[i].DateStarted.Before(dstConvs[j].DateStarted) })
	sort.SliceStable(srcConvs, func(i, j int) bool { return srcConvs[i].DateStarted.Before(srcConvs[j].DateStarted) })

	excluded := make(map[model.ID]bool)
	var losers []model.ID

	// Same-date clusters are assumed small; the inner scan is bounded by
	// the cluster, never the whole source list.
	j := 0
	for i := range dstConvs {
		dc := &dstConvs[i]
		for j < len(srcConvs) && srcConvs[j].DateStarted.Before(dc.DateStarted) {
			j++
		}
		for k := j; k < len(srcConvs) && srcConvs[k].DateStarted.Equal(dc.DateStarted); k++ {
			sc := &srcConvs[k]
			if excluded[sc.ID] {
				continue
			}
			if mapping[sc.LocalAccountID] != dc.LocalAccountID || mapping[sc.RemoteAccountID] != dc.RemoteAccountID {
				continue
			}
			if len(sc.Replies) > len(dc.Replies) {
				losers = append(losers, dc.ID)
			} else {
				excluded[sc.ID] = true
			}
			break
		}
	}

	for _, id := range losers {
		if err := dst.DeleteConversation(id); err != nil {
			return err
		}
	}

	mapAccount := func(id model.ID) (model.ID, error) {
		mapped, ok := mapping[id]
		if !ok {
			return 0, fmt.Errorf("unmapped source account %d: %w", id, model.ErrNotFound)
		}
		return mapped, nil
	}
	imported := 0
	for i := range srcConvs {
		if excluded[srcConvs[i].ID] {
			continue
		}
		if err := importConversation(dst, srcConvs[i], mapAccount); err != nil {
			return err
		}
		imported++
		e.progress("merging conversations", imported, len(srcConvs)-len(excluded))
	}
	e.log.Info().
		Int("imported", imported).
		Int("absorbed", len(excluded)).
		Int("replaced", len(losers)).
		Msg("merge finished")
	return nil
}
