// Package storetest provides a driver-agnostic compliance suite for
// store.Store implementations.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatvault/chatvault/internal/store"
)

// Factory returns a fresh, empty store for each subtest.
type Factory func(t *testing.T) store.Store

// Run executes the compliance suite against the given driver.
func Run(t *testing.T, newStore Factory) {
	t.Run("ArchiveLifecycle", func(t *testing.T) { testArchiveLifecycle(t, newStore(t)) })
	t.Run("GroupTree", func(t *testing.T) { testGroupTree(t, newStore(t)) })
	t.Run("MoveAndRename", func(t *testing.T) { testMoveAndRename(t, newStore(t)) })
	t.Run("ConversationRows", func(t *testing.T) { testConversationRows(t, newStore(t)) })
	t.Run("CascadeDelete", func(t *testing.T) { testCascadeDelete(t, newStore(t)) })
	t.Run("CountDependentOn", func(t *testing.T) { testCountDependentOn(t, newStore(t)) })
}

func testArchiveLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()

	id, err := s.Archives().Create(ctx, "main")
	require.NoError(t, err)
	require.NotZero(t, id)

	rows, err := s.Archives().List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "main", rows[0].Name)

	require.NoError(t, s.Archives().Delete(ctx, id))
	rows, err = s.Archives().List(ctx)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func testGroupTree(t *testing.T, s store.Store) {
	ctx := context.Background()
	arc, err := s.Archives().Create(ctx, "main")
	require.NoError(t, err)

	idsGroup, err := s.Groups().Create(ctx, store.GroupRow{ArchiveID: arc, Name: "Identities", Position: 0})
	require.NoError(t, err)
	friends, err := s.Groups().Create(ctx, store.GroupRow{ArchiveID: arc, Name: "Friends", Position: 1})
	require.NoError(t, err)

	me, err := s.Contacts().Create(ctx, store.ContactRow{GroupID: idsGroup, Name: "Me"})
	require.NoError(t, err)
	alice, err := s.Contacts().Create(ctx, store.ContactRow{GroupID: friends, Name: "Alice"})
	require.NoError(t, err)

	_, err = s.Accounts().Create(ctx, store.AccountRow{ContactID: me, Service: "msn", Name: "me@host"})
	require.NoError(t, err)
	_, err = s.Accounts().Create(ctx, store.AccountRow{ContactID: alice, Service: "msn", Name: "alice@host"})
	require.NoError(t, err)

	groups, err := s.Groups().List(ctx, arc)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, "Identities", groups[0].Name)
	require.Equal(t, 0, groups[0].Position)

	contacts, err := s.Contacts().List(ctx, arc)
	require.NoError(t, err)
	require.Len(t, contacts, 2)

	accounts, err := s.Accounts().List(ctx, arc)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
}

func testMoveAndRename(t *testing.T, s store.Store) {
	ctx := context.Background()
	arc, err := s.Archives().Create(ctx, "main")
	require.NoError(t, err)

	g1, err := s.Groups().Create(ctx, store.GroupRow{ArchiveID: arc, Name: "Friends", Position: 1})
	require.NoError(t, err)
	g2, err := s.Groups().Create(ctx, store.GroupRow{ArchiveID: arc, Name: "Work", Position: 2})
	require.NoError(t, err)

	c1, err := s.Contacts().Create(ctx, store.ContactRow{GroupID: g1, Name: "Alice"})
	require.NoError(t, err)
	c2, err := s.Contacts().Create(ctx, store.ContactRow{GroupID: g1, Name: "Bob"})
	require.NoError(t, err)
	acc, err := s.Accounts().Create(ctx, store.AccountRow{ContactID: c1, Service: "irc", Name: "alice"})
	require.NoError(t, err)

	require.NoError(t, s.Groups().Rename(ctx, g2, "Office"))
	require.NoError(t, s.Contacts().Rename(ctx, c1, "Alicia"))
	require.NoError(t, s.Contacts().Move(ctx, c1, g2))
	require.NoError(t, s.Accounts().Rename(ctx, acc, "alicia"))
	require.NoError(t, s.Accounts().Move(ctx, acc, c2))

	groups, err := s.Groups().List(ctx, arc)
	require.NoError(t, err)
	require.Equal(t, "Office", groups[1].Name)

	contacts, err := s.Contacts().List(ctx, arc)
	require.NoError(t, err)
	byID := map[int64]store.ContactRow{}
	for _, c := range contacts {
		byID[c.ID] = c
	}
	require.Equal(t, "Alicia", byID[c1].Name)
	require.Equal(t, g2, byID[c1].GroupID)

	accounts, err := s.Accounts().List(ctx, arc)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, "alicia", accounts[0].Name)
	require.Equal(t, c2, accounts[0].ContactID)
}

func testConversationRows(t *testing.T, s store.Store) {
	ctx := context.Background()
	arc, err := s.Archives().Create(ctx, "main")
	require.NoError(t, err)
	g, err := s.Groups().Create(ctx, store.GroupRow{ArchiveID: arc, Name: "Friends", Position: 1})
	require.NoError(t, err)
	c, err := s.Contacts().Create(ctx, store.ContactRow{GroupID: g, Name: "Alice"})
	require.NoError(t, err)
	local, err := s.Accounts().Create(ctx, store.AccountRow{ContactID: c, Service: "msn", Name: "me@host"})
	require.NoError(t, err)
	remote, err := s.Accounts().Create(ctx, store.AccountRow{ContactID: c, Service: "msn", Name: "alice@host"})
	require.NoError(t, err)

	started := time.Date(2004, 6, 1, 20, 15, 0, 0, time.UTC)
	conv, err := s.Conversations().Create(ctx, store.ConversationRow{
		ArchiveID:       arc,
		DateStarted:     started,
		LocalAccountID:  local,
		RemoteAccountID: remote,
	})
	require.NoError(t, err)

	sp, err := s.Conversations().AddSpeaker(ctx, store.SpeakerRow{
		ConversationID: conv, Position: 0, Name: "Alice", AccountID: remote,
	})
	require.NoError(t, err)
	_, err = s.Conversations().AddReply(ctx, store.ReplyRow{
		ConversationID: conv, Position: 0, Date: started, SpeakerID: sp, Text: "hi",
	})
	require.NoError(t, err)
	_, err = s.Conversations().AddReply(ctx, store.ReplyRow{
		ConversationID: conv, Position: 1, Date: started.Add(time.Minute), Text: "Alice has left",
	})
	require.NoError(t, err)

	convs, err := s.Conversations().List(ctx, arc)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, local, convs[0].LocalAccountID)
	require.True(t, convs[0].DateStarted.Equal(started))

	speakers, err := s.Conversations().Speakers(ctx, conv)
	require.NoError(t, err)
	require.Len(t, speakers, 1)
	require.Equal(t, "Alice", speakers[0].Name)

	replies, err := s.Conversations().Replies(ctx, conv)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	require.Equal(t, sp, replies[0].SpeakerID)
	require.Zero(t, replies[1].SpeakerID)

	n, err := s.Conversations().Count(ctx, arc)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = s.Conversations().CountReplies(ctx, arc)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func testCascadeDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	arc, err := s.Archives().Create(ctx, "main")
	require.NoError(t, err)
	g, err := s.Groups().Create(ctx, store.GroupRow{ArchiveID: arc, Name: "Friends", Position: 1})
	require.NoError(t, err)
	c, err := s.Contacts().Create(ctx, store.ContactRow{GroupID: g, Name: "Alice"})
	require.NoError(t, err)
	_, err = s.Accounts().Create(ctx, store.AccountRow{ContactID: c, Service: "msn", Name: "alice@host"})
	require.NoError(t, err)

	require.NoError(t, s.Groups().Delete(ctx, g))

	contacts, err := s.Contacts().List(ctx, arc)
	require.NoError(t, err)
	require.Empty(t, contacts)
	accounts, err := s.Accounts().List(ctx, arc)
	require.NoError(t, err)
	require.Empty(t, accounts)
}

func testCountDependentOn(t *testing.T, s store.Store) {
	ctx := context.Background()
	arc, err := s.Archives().Create(ctx, "main")
	require.NoError(t, err)
	g, err := s.Groups().Create(ctx, store.GroupRow{ArchiveID: arc, Name: "Friends", Position: 1})
	require.NoError(t, err)
	c, err := s.Contacts().Create(ctx, store.ContactRow{GroupID: g, Name: "Alice"})
	require.NoError(t, err)
	local, err := s.Accounts().Create(ctx, store.AccountRow{ContactID: c, Service: "msn", Name: "me@host"})
	require.NoError(t, err)
	remote, err := s.Accounts().Create(ctx, store.AccountRow{ContactID: c, Service: "msn", Name: "alice@host"})
	require.NoError(t, err)
	other, err := s.Accounts().Create(ctx, store.AccountRow{ContactID: c, Service: "irc", Name: "alice"})
	require.NoError(t, err)

	started := time.Date(2004, 6, 1, 20, 15, 0, 0, time.UTC)
	conv, err := s.Conversations().Create(ctx, store.ConversationRow{
		ArchiveID: arc, DateStarted: started, LocalAccountID: local, RemoteAccountID: remote,
	})
	require.NoError(t, err)
	_, err = s.Conversations().AddSpeaker(ctx, store.SpeakerRow{
		ConversationID: conv, Position: 0, Name: "Alice", AccountID: remote,
	})
	require.NoError(t, err)

	n, err := s.Conversations().CountDependentOn(ctx, arc, []int64{remote})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.Conversations().CountDependentOn(ctx, arc, []int64{other})
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = s.Conversations().CountDependentOn(ctx, arc, nil)
	require.NoError(t, err)
	require.Zero(t, n)
}
