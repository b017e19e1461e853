package store

import (
	"context"
	"fmt"

	"github.com/chatvault/chatvault/internal/archive"
	"github.com/chatvault/chatvault/internal/model"
)

// SaveArchive persists a populated in-memory archive under the given store
// archive id, replacing whatever rows that archive held. Arena ids are not
// stable across processes; the store assigns its own.
func SaveArchive(ctx context.Context, s Store, archiveID int64, a *archive.Archive) error {
	existing, err := s.Groups().List(ctx, archiveID)
	if err != nil {
		return err
	}
	for _, g := range existing {
		if err := s.Groups().Delete(ctx, g.ID); err != nil {
			return err
		}
	}
	leftover, err := s.Conversations().List(ctx, archiveID)
	if err != nil {
		return err
	}
	for _, c := range leftover {
		if err := s.Conversations().Delete(ctx, c.ID); err != nil {
			return err
		}
	}

	accountIDs := make(map[model.ID]int64)
	for pos, g := range a.Groups() {
		gid, err := s.Groups().Create(ctx, GroupRow{ArchiveID: archiveID, Name: g.Name, Position: pos})
		if err != nil {
			return err
		}
		for _, c := range a.ContactsIn(g.ID) {
			cid, err := s.Contacts().Create(ctx, ContactRow{GroupID: gid, Name: c.Name})
			if err != nil {
				return err
			}
			for _, acc := range a.AccountsOf(c.ID) {
				aid, err := s.Accounts().Create(ctx, AccountRow{ContactID: cid, Service: acc.Service, Name: acc.Name})
				if err != nil {
					return err
				}
				accountIDs[acc.ID] = aid
			}
		}
	}

	for _, c := range a.Conversations() {
		row := ConversationRow{
			ArchiveID:       archiveID,
			DateStarted:     c.DateStarted,
			LocalAccountID:  accountIDs[c.LocalAccountID],
			RemoteAccountID: accountIDs[c.RemoteAccountID],
			Conference:      c.Conference,
		}
		convID, err := s.Conversations().Create(ctx, row)
		if err != nil {
			return err
		}
		speakerIDs := make(map[model.ID]int64, len(c.Speakers))
		for pos, sp := range c.Speakers {
			id, err := s.Conversations().AddSpeaker(ctx, SpeakerRow{
				ConversationID: convID,
				Position:       pos,
				Name:           sp.Name,
				AccountID:      accountIDs[sp.AccountID],
			})
			if err != nil {
				return err
			}
			speakerIDs[sp.ID] = id
		}
		for pos, r := range c.Replies {
			if _, err := s.Conversations().AddReply(ctx, ReplyRow{
				ConversationID: convID,
				Position:       pos,
				Date:           r.Date,
				SpeakerID:      speakerIDs[r.SpeakerID],
				Text:           r.Text,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadArchive reconstructs an in-memory archive from the store. The group
// at position 0 is the Identities group.
func LoadArchive(ctx context.Context, s Store, archiveID int64) (*archive.Archive, error) {
	groups, err := s.Groups().List(ctx, archiveID)
	if err != nil {
		return nil, err
	}
	contacts, err := s.Contacts().List(ctx, archiveID)
	if err != nil {
		return nil, err
	}
	accounts, err := s.Accounts().List(ctx, archiveID)
	if err != nil {
		return nil, err
	}

	a := archive.New()
	groupIDs := make(map[int64]model.ID, len(groups))
	for _, g := range groups {
		if g.Position == 0 {
			groupIDs[g.ID] = a.IdentitiesGroupID()
			continue
		}
		created, err := a.CreateGroup(g.Name)
		if err != nil {
			return nil, err
		}
		groupIDs[g.ID] = created.ID
	}
	contactIDs := make(map[int64]model.ID, len(contacts))
	for _, c := range contacts {
		gid, ok := groupIDs[c.GroupID]
		if !ok {
			return nil, fmt.Errorf("contact %d: group %d: %w", c.ID, c.GroupID, model.ErrStore)
		}
		created, err := a.CreateContact(gid, c.Name)
		if err != nil {
			return nil, err
		}
		contactIDs[c.ID] = created.ID
	}
	accountIDs := make(map[int64]model.ID, len(accounts))
	for _, acc := range accounts {
		cid, ok := contactIDs[acc.ContactID]
		if !ok {
			return nil, fmt.Errorf("account %d: contact %d: %w", acc.ID, acc.ContactID, model.ErrStore)
		}
		created, err := a.CreateAccount(cid, acc.Service, acc.Name)
		if err != nil {
			return nil, err
		}
		accountIDs[acc.ID] = created.ID
	}

	convs, err := s.Conversations().List(ctx, archiveID)
	if err != nil {
		return nil, err
	}
	for _, row := range convs {
		if err := loadConversation(ctx, s, a, row, accountIDs); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func loadConversation(ctx context.Context, s Store, a *archive.Archive, row ConversationRow, accountIDs map[int64]model.ID) error {
	conv, err := a.CreateConversation(row.DateStarted, accountIDs[row.LocalAccountID], accountIDs[row.RemoteAccountID], row.Conference)
	if err != nil {
		return err
	}
	speakers, err := s.Conversations().Speakers(ctx, row.ID)
	if err != nil {
		return err
	}
	speakerIDs := make(map[int64]model.ID, len(speakers))
	for _, sp := range speakers {
		created, err := a.AddSpeaker(conv.ID, sp.Name, accountIDs[sp.AccountID])
		if err != nil {
			return err
		}
		speakerIDs[sp.ID] = created.ID
	}
	replies, err := s.Conversations().Replies(ctx, row.ID)
	if err != nil {
		return err
	}
	for _, r := range replies {
		if _, err := a.AppendReply(conv.ID, r.Date, speakerIDs[r.SpeakerID], r.Text); err != nil {
			return err
		}
	}
	return nil
}
