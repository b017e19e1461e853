package importer

import (
	"fmt"

	"github.com/chatvault/chatvault/internal/archive"
	"github.com/chatvault/chatvault/internal/logparse"
	"github.com/chatvault/chatvault/internal/model"
)

// ImportedGroupName is the group receiving non-identity contacts created by
// an import.
const ImportedGroupName = "Imported"

// finalize applies all resolutions and materializes the full archive,
// reporting progress per converted conversation.
func (s *importState) finalize() (*archive.Archive, error) {
	// Accounts that only came into being to satisfy a manual alias
	// resolution still need to be created.
	for _, alias := range s.resolutions {
		if alias.Resolution == nil {
			continue
		}
		if _, ok := s.planByKey(alias.Resolution.Key()); !ok {
			s.plans = append(s.plans, AccountPlan{Account: *alias.Resolution, Local: s.localNames[alias.Name]})
		}
	}

	a := archive.New()
	imported, err := a.CreateGroup(ImportedGroupName)
	if err != nil {
		return nil, err
	}

	accountIDs := make(map[model.AccountKey]model.ID, len(s.plans))
	for _, p := range s.plans {
		groupID := a.IdentitiesGroupID()
		if !p.Local {
			groupID = imported.ID
		}
		contactID, err := s.contactFor(a, groupID, p)
		if err != nil {
			return nil, err
		}
		acc, err := a.CreateAccount(contactID, p.Account.Service, p.Account.Name)
		if err != nil {
			return nil, err
		}
		accountIDs[p.Account.Key()] = acc.ID
	}

	s.progress("converting conversations", 0, len(s.convs))
	for i, c := range s.convs {
		if err := s.convertConversation(a, c, accountIDs); err != nil {
			return nil, err
		}
		s.progress("converting conversations", i+1, len(s.convs))
	}
	return a, nil
}

// contactFor places an account under a contact named after the account's
// first alias (falling back to the raw account name). An existing contact
// with the same name and classification absorbs the account; a
// cross-classification collision disambiguates with *.
func (s *importState) contactFor(a *archive.Archive, groupID model.ID, p AccountPlan) (model.ID, error) {
	name := s.aliasIndex.DisplayName(p.Account)
	if c, ok := a.ContactByName(name); ok && a.IsIdentityContact(c.ID) == p.Local {
		return c.ID, nil
	}
	for {
		if _, taken := a.ContactByName(name); !taken {
			break
		}
		name += "*"
	}
	c, err := a.CreateContact(groupID, name)
	if err != nil {
		return 0, err
	}
	return c.ID, nil
}

func (s *importState) convertConversation(a *archive.Archive, c *ParsedConversation, accountIDs map[model.AccountKey]model.ID) error {
	localID, ok := accountIDs[model.AccountKey{Service: c.Service, Name: c.LocalGuess}]
	if !ok {
		return fmt.Errorf("%w: %s: no local account %q", model.ErrResolution, c.File, c.LocalGuess)
	}
	remoteID, ok := accountIDs[model.AccountKey{Service: c.Service, Name: c.RemoteGuess}]
	if !ok {
		return fmt.Errorf("%w: %s: no remote account %q", model.ErrResolution, c.File, c.RemoteGuess)
	}
	conv, err := a.CreateConversation(c.Date, localID, remoteID, c.Conference)
	if err != nil {
		return err
	}

	speakerIDs := make(map[string]model.ID, len(c.Speakers))
	for _, name := range c.Speakers {
		accountID, err := s.speakerAccountID(c, name, accountIDs, localID, remoteID)
		if err != nil {
			return err
		}
		sp, err := a.AddSpeaker(conv.ID, name, accountID)
		if err != nil {
			return err
		}
		speakerIDs[name] = sp.ID
	}
	for _, ev := range c.Events {
		speakerID := model.ID(0)
		if ev.Kind == logparse.Regular {
			speakerID = speakerIDs[ev.Sender]
		}
		if _, err := a.AppendReply(conv.ID, ev.Date, speakerID, ev.Text); err != nil {
			return err
		}
	}
	return nil
}

// speakerAccountID maps one speaker to its account. In a two-party
// conversation the non-local speaker is always the remote account; in a
// conference every name must resolve through the alias index or a manual
// resolution. A name that resolves nowhere is a defensive invariant
// violation: it should have appeared in an UnresolvedAliasesQuery.
func (s *importState) speakerAccountID(c *ParsedConversation, name string, accountIDs map[model.AccountKey]model.ID, localID, remoteID model.ID) (model.ID, error) {
	if s.localNames[name] {
		return localID, nil
	}
	if !c.Conference {
		return remoteID, nil
	}
	acct, ok := s.resolveSpeaker(c.Service, name)
	if !ok {
		return 0, fmt.Errorf("%w: %s: speaker %q has no resolved account", model.ErrResolution, c.File, name)
	}
	id, ok := accountIDs[acct.Key()]
	if !ok {
		return 0, fmt.Errorf("%w: %s: speaker %q resolves to unknown account %s", model.ErrResolution, c.File, name, acct.Key())
	}
	return id, nil
}
