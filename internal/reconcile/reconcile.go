// Package reconcile merges one populated archive into another. Replace
// wipes the destination and copies the source wholesale; Merge resolves
// every source account against the destination with *-disambiguation and
// deduplicates conversations by date and account pair. Both run as one
// batched archive change and report incremental progress, since they are
// long-running and executed off the interactive thread.
package reconcile

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/chatvault/chatvault/internal/archive"
	"github.com/chatvault/chatvault/internal/model"
)

// Progress receives incremental progress reports. Total -1 means
// indeterminate.
type Progress func(comment string, completed, total int)

// Engine runs reconciliation operations between two archives.
type Engine struct {
	log      zerolog.Logger
	progress Progress
}

// New returns an engine logging to log.
func New(log zerolog.Logger) *Engine {
	return &Engine{log: log, progress: func(string, int, int) {}}
}

// OnProgress installs a progress callback.
func (e *Engine) OnProgress(p Progress) {
	if p != nil {
		e.progress = p
	}
}

// Replace deletes all of dst's data, then copies src's groups, contacts and
// accounts verbatim by name. Unless accountingOnly, every conversation is
// copied with speakers and replies in original order, accounts remapped by
// (service, name) lookup in dst.
func (e *Engine) Replace(dst, src *archive.Archive, accountingOnly bool) error {
	e.log.Info().Bool("accounting_only", accountingOnly).Msg("replace started")
	return dst.Batch(func() error {
		if err := dst.Wipe(); err != nil {
			return fmt.Errorf("replace: wipe: %w", err)
		}
		if err := copyAccounting(dst, src); err != nil {
			return fmt.Errorf("replace: %w", err)
		}
		if accountingOnly {
			return nil
		}
		mapAccount := func(id model.ID) (model.ID, error) {
			acc, ok := src.Account(id)
			if !ok {
				return 0, fmt.Errorf("source account %d: %w", id, model.ErrNotFound)
			}
			dstAcc, ok := dst.AccountByKey(acc.Key())
			if !ok {
				return 0, fmt.Errorf("destination account %s: %w", acc.Key(), model.ErrNotFound)
			}
			return dstAcc.ID, nil
		}
		convs := src.Conversations()
		for i, c := range convs {
			if err := importConversation(dst, c, mapAccount); err != nil {
				return fmt.Errorf("replace: %w", err)
			}
			e.progress("copying conversations", i+1, len(convs))
		}
		e.log.Info().Int("conversations", len(convs)).Msg("replace finished")
		return nil
	})
}

// copyAccounting copies src's group/contact/account tree into dst by name.
// Identity contacts land in dst's Identities group.
func copyAccounting(dst, src *archive.Archive) error {
	for _, g := range src.Groups() {
		targetGroup := dst.IdentitiesGroupID()
		if g.ID != src.IdentitiesGroupID() {
			created, err := dst.CreateGroup(g.Name)
			if err != nil {
				return err
			}
			targetGroup = created.ID
		}
		for _, c := range src.ContactsIn(g.ID) {
			dc, err := dst.CreateContact(targetGroup, c.Name)
			if err != nil {
				return err
			}
			for _, acc := range src.AccountsOf(c.ID) {
				if _, err := dst.CreateAccount(dc.ID, acc.Service, acc.Name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// importConversation recreates one source conversation in dst, translating
// account references through mapAccount and preserving speaker and reply
// order.
func importConversation(dst *archive.Archive, c model.Conversation, mapAccount func(model.ID) (model.ID, error)) error {
	local, err := mapAccount(c.LocalAccountID)
	if err != nil {
		return err
	}
	remote, err := mapAccount(c.RemoteAccountID)
	if err != nil {
		return err
	}
	created, err := dst.CreateConversation(c.DateStarted, local, remote, c.Conference)
	if err != nil {
		return err
	}
	speakerIDs := make(map[model.ID]model.ID, len(c.Speakers))
	for _, s := range c.Speakers {
		accountID := model.ID(0)
		if s.AccountID != 0 {
			if accountID, err = mapAccount(s.AccountID); err != nil {
				return err
			}
		}
		ns, err := dst.AddSpeaker(created.ID, s.Name, accountID)
		if err != nil {
			return err
		}
		speakerIDs[s.ID] = ns.ID
	}
	for _, r := range c.Replies {
		if _, err := dst.AppendReply(created.ID, r.Date, speakerIDs[r.SpeakerID], r.Text); err != nil {
			return err
		}
	}
	return nil
}
