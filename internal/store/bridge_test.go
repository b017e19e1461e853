package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatvault/chatvault/internal/archive"
	"github.com/chatvault/chatvault/internal/store"
	"github.com/chatvault/chatvault/internal/store/sqlite"
)

func openStore(t *testing.T) store.Store {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "chatvault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlite.NewWithDB(db)
}

func buildArchive(t *testing.T) *archive.Archive {
	t.Helper()
	a := archive.New()

	me, err := a.CreateContact(a.IdentitiesGroupID(), "Me")
	require.NoError(t, err)
	local, err := a.CreateAccount(me.ID, "msn", "me@host")
	require.NoError(t, err)

	g, err := a.CreateGroup("Friends")
	require.NoError(t, err)
	alice, err := a.CreateContact(g.ID, "Alice")
	require.NoError(t, err)
	remote, err := a.CreateAccount(alice.ID, "msn", "alice@host")
	require.NoError(t, err)

	started := time.Date(2004, 6, 1, 20, 15, 0, 0, time.UTC)
	conv, err := a.CreateConversation(started, local.ID, remote.ID, false)
	require.NoError(t, err)
	sp, err := a.AddSpeaker(conv.ID, "Alice", remote.ID)
	require.NoError(t, err)
	_, err = a.AppendReply(conv.ID, started, sp.ID, "hello")
	require.NoError(t, err)
	_, err = a.AppendReply(conv.ID, started.Add(time.Minute), 0, "Alice has left the room")
	require.NoError(t, err)
	return a
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	arcID, err := s.Archives().Create(ctx, "main")
	require.NoError(t, err)

	src := buildArchive(t)
	require.NoError(t, store.SaveArchive(ctx, s, arcID, src))

	loaded, err := store.LoadArchive(ctx, s, arcID)
	require.NoError(t, err)

	require.Len(t, loaded.Groups(), 2)
	require.Equal(t, src.ConversationCount(), loaded.ConversationCount())

	contacts := loaded.ContactsIn(loaded.IdentitiesGroupID())
	require.Len(t, contacts, 1)
	require.Equal(t, "Me", contacts[0].Name)

	convs := loaded.Conversations()
	require.Len(t, convs, 1)
	require.Len(t, convs[0].Speakers, 1)
	require.Len(t, convs[0].Replies, 2)
	require.Equal(t, "hello", convs[0].Replies[0].Text)
	require.Equal(t, convs[0].Speakers[0].ID, convs[0].Replies[0].SpeakerID)
	require.Zero(t, convs[0].Replies[1].SpeakerID)

	local, ok := loaded.Account(convs[0].LocalAccountID)
	require.True(t, ok)
	require.Equal(t, "me@host", local.Name)
	require.True(t, loaded.IsIdentityAccount(local.ID))
}

func TestSaveReplacesPreviousRows(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	arcID, err := s.Archives().Create(ctx, "main")
	require.NoError(t, err)

	require.NoError(t, store.SaveArchive(ctx, s, arcID, buildArchive(t)))
	require.NoError(t, store.SaveArchive(ctx, s, arcID, buildArchive(t)))

	groups, err := s.Groups().List(ctx, arcID)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	n, err := s.Conversations().Count(ctx, arcID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
