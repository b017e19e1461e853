package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatvault/chatvault/internal/model"
)

// fixture builds an archive with one identity, two regular contacts, and a
// conversation with each.
type fixture struct {
	a            *Archive
	local        model.Account
	alice, bob   model.Account
	friends      model.Group
	convA, convB model.Conversation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	a := New()
	f := &fixture{a: a}

	me, err := a.CreateContact(a.IdentitiesGroupID(), "Me")
	require.NoError(t, err)
	f.local, err = a.CreateAccount(me.ID, "msn", "me@host")
	require.NoError(t, err)

	f.friends, err = a.CreateGroup("Friends")
	require.NoError(t, err)
	alice, err := a.CreateContact(f.friends.ID, "Alice")
	require.NoError(t, err)
	f.alice, err = a.CreateAccount(alice.ID, "msn", "alice@host")
	require.NoError(t, err)
	bob, err := a.CreateContact(f.friends.ID, "Bob")
	require.NoError(t, err)
	f.bob, err = a.CreateAccount(bob.ID, "msn", "bob@host")
	require.NoError(t, err)

	base := time.Date(2004, 6, 1, 20, 0, 0, 0, time.UTC)
	f.convA, err = a.CreateConversation(base, f.local.ID, f.alice.ID, false)
	require.NoError(t, err)
	f.convB, err = a.CreateConversation(base.Add(time.Hour), f.local.ID, f.bob.ID, false)
	require.NoError(t, err)
	return f
}

func TestNewHasIdentitiesGroup(t *testing.T) {
	a := New()
	groups := a.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, IdentitiesGroupName, groups[0].Name)
	assert.Equal(t, a.IdentitiesGroupID(), groups[0].ID)
}

func TestCreateGroupIdempotent(t *testing.T) {
	a := New()
	g1, err := a.CreateGroup("Friends")
	require.NoError(t, err)
	g2, err := a.CreateGroup("Friends")
	require.NoError(t, err)
	assert.Equal(t, g1.ID, g2.ID)
	assert.Len(t, a.Groups(), 2)

	_, err = a.CreateGroup("")
	assert.ErrorIs(t, err, model.ErrEmptyName)
}

func TestCreateContactUniqueArchiveWide(t *testing.T) {
	a := New()
	g1, err := a.CreateGroup("Friends")
	require.NoError(t, err)
	g2, err := a.CreateGroup("Work")
	require.NoError(t, err)

	c1, err := a.CreateContact(g1.ID, "Alice")
	require.NoError(t, err)
	c2, err := a.CreateContact(g1.ID, "Alice")
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)

	_, err = a.CreateContact(g2.ID, "Alice")
	assert.ErrorIs(t, err, model.ErrDuplicateName)

	_, err = a.CreateContact(model.ID(9999), "Carol")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreateAccountUniqueKey(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.a.ContactByName("Alice")
	bob, _ := f.a.ContactByName("Bob")

	same, err := f.a.CreateAccount(alice.ID, "msn", "alice@host")
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, same.ID)

	_, err = f.a.CreateAccount(bob.ID, "msn", "alice@host")
	assert.ErrorIs(t, err, model.ErrDuplicateName)
}

func TestCreateConversationIdempotentByKey(t *testing.T) {
	f := newFixture(t)
	dup, err := f.a.CreateConversation(f.convA.DateStarted, f.local.ID, f.alice.ID, false)
	require.NoError(t, err)
	assert.Equal(t, f.convA.ID, dup.ID)
	assert.Equal(t, 2, f.a.ConversationCount())
}

func TestAddSpeakerAndReply(t *testing.T) {
	f := newFixture(t)
	sp, err := f.a.AddSpeaker(f.convA.ID, "Alice", f.alice.ID)
	require.NoError(t, err)
	again, err := f.a.AddSpeaker(f.convA.ID, "Alice", f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, sp.ID, again.ID)

	_, err = f.a.AppendReply(f.convA.ID, f.convA.DateStarted, sp.ID, "hi")
	require.NoError(t, err)
	_, err = f.a.AppendReply(f.convA.ID, f.convA.DateStarted, 0, "system line")
	require.NoError(t, err)
	_, err = f.a.AppendReply(f.convA.ID, f.convA.DateStarted, model.ID(9999), "bad")
	assert.ErrorIs(t, err, model.ErrNotFound)

	c, ok := f.a.Conversation(f.convA.ID)
	require.True(t, ok)
	assert.Len(t, c.Replies, 2)
}

func TestConversationHandlesAreCopies(t *testing.T) {
	f := newFixture(t)
	sp, err := f.a.AddSpeaker(f.convA.ID, "Alice", f.alice.ID)
	require.NoError(t, err)
	_, err = f.a.AppendReply(f.convA.ID, f.convA.DateStarted, sp.ID, "hi")
	require.NoError(t, err)

	c, _ := f.a.Conversation(f.convA.ID)
	c.Replies[0].Text = "tampered"
	c.Speakers[0].Name = "tampered"

	fresh, _ := f.a.Conversation(f.convA.ID)
	assert.Equal(t, "hi", fresh.Replies[0].Text)
	assert.Equal(t, "Alice", fresh.Speakers[0].Name)
}

func TestRenameProtections(t *testing.T) {
	f := newFixture(t)

	_, err := f.a.RenameGroup(f.a.IdentitiesGroupID(), "Mine")
	assert.ErrorIs(t, err, model.ErrProtectedEntity)

	g, err := f.a.RenameGroup(f.friends.ID, "Buddies")
	require.NoError(t, err)
	assert.Equal(t, "Buddies", g.Name)
	_, ok := f.a.GroupByName("Friends")
	assert.False(t, ok)

	work, err := f.a.CreateGroup("Work")
	require.NoError(t, err)
	_, err = f.a.RenameGroup(work.ID, "Buddies")
	assert.ErrorIs(t, err, model.ErrDuplicateName)

	alice, _ := f.a.ContactByName("Alice")
	_, err = f.a.RenameContact(alice.ID, "Bob")
	assert.ErrorIs(t, err, model.ErrDuplicateName)

	_, err = f.a.RenameAccount(f.alice.ID, "bob@host")
	assert.ErrorIs(t, err, model.ErrDuplicateName)
	renamed, err := f.a.RenameAccount(f.alice.ID, "alice2@host")
	require.NoError(t, err)
	assert.Equal(t, "alice2@host", renamed.Name)
	_, ok = f.a.AccountByKey(model.AccountKey{Service: "msn", Name: "alice@host"})
	assert.False(t, ok)
}

func TestMoveContactBoundary(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.a.ContactByName("Alice")
	me, _ := f.a.ContactByName("Me")

	_, err := f.a.MoveContact(alice.ID, f.a.IdentitiesGroupID())
	assert.ErrorIs(t, err, model.ErrInvalidMove)
	_, err = f.a.MoveContact(me.ID, f.friends.ID)
	assert.ErrorIs(t, err, model.ErrInvalidMove)

	work, err := f.a.CreateGroup("Work")
	require.NoError(t, err)
	moved, err := f.a.MoveContact(alice.ID, work.ID)
	require.NoError(t, err)
	assert.Equal(t, work.ID, moved.GroupID)
	assert.Len(t, f.a.ContactsIn(work.ID), 1)
	assert.Len(t, f.a.ContactsIn(f.friends.ID), 1)
}

func TestMoveAccountClassification(t *testing.T) {
	f := newFixture(t)
	me, _ := f.a.ContactByName("Me")
	bob, _ := f.a.ContactByName("Bob")

	_, err := f.a.MoveAccount(f.alice.ID, me.ID)
	assert.ErrorIs(t, err, model.ErrInvalidMove)

	moved, err := f.a.MoveAccount(f.alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, moved.ContactID)
	assert.Len(t, f.a.AccountsOf(bob.ID), 2)
}

func TestMergeGroups(t *testing.T) {
	f := newFixture(t)
	work, err := f.a.CreateGroup("Work")
	require.NoError(t, err)
	carol, err := f.a.CreateContact(work.ID, "Carol")
	require.NoError(t, err)

	require.NoError(t, f.a.MergeGroups(work.ID, f.friends.ID))
	_, ok := f.a.Group(work.ID)
	assert.False(t, ok)
	moved, _ := f.a.Contact(carol.ID)
	assert.Equal(t, f.friends.ID, moved.GroupID)

	assert.ErrorIs(t, f.a.MergeGroups(f.a.IdentitiesGroupID(), f.friends.ID), model.ErrProtectedEntity)
	assert.NoError(t, f.a.MergeGroups(f.friends.ID, f.friends.ID))
}

func TestMergeContacts(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.a.ContactByName("Alice")
	bob, _ := f.a.ContactByName("Bob")
	me, _ := f.a.ContactByName("Me")

	assert.ErrorIs(t, f.a.MergeContacts(alice.ID, me.ID), model.ErrProtectedEntity)

	require.NoError(t, f.a.MergeContacts(bob.ID, alice.ID))
	_, ok := f.a.Contact(bob.ID)
	assert.False(t, ok)
	assert.Len(t, f.a.AccountsOf(alice.ID), 2)
	// Bob's conversation survives: his account moved, it was not deleted.
	assert.Equal(t, 2, f.a.ConversationCount())
}

func TestDeleteContactCascade(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.a.ContactByName("Alice")

	require.NoError(t, f.a.DeleteContact(alice.ID))

	_, ok := f.a.Contact(alice.ID)
	assert.False(t, ok)
	_, ok = f.a.Account(f.alice.ID)
	assert.False(t, ok)
	_, ok = f.a.Conversation(f.convA.ID)
	assert.False(t, ok)
	_, ok = f.a.Conversation(f.convB.ID)
	assert.True(t, ok)
}

func TestDeleteGroupCascade(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.a.DeleteGroup(f.friends.ID))

	assert.Equal(t, 0, f.a.ConversationCount())
	_, ok := f.a.ContactByName("Alice")
	assert.False(t, ok)
	_, ok = f.a.AccountByKey(model.AccountKey{Service: "msn", Name: "bob@host"})
	assert.False(t, ok)

	assert.ErrorIs(t, f.a.DeleteGroup(f.a.IdentitiesGroupID()), model.ErrProtectedEntity)
}

func TestDeleteAccountCascadesSpeakerReferences(t *testing.T) {
	f := newFixture(t)
	// Bob speaks in Alice's conversation; deleting Bob's account must take
	// that conversation down too.
	_, err := f.a.AddSpeaker(f.convA.ID, "Bob", f.bob.ID)
	require.NoError(t, err)

	require.NoError(t, f.a.DeleteAccount(f.bob.ID))
	_, ok := f.a.Conversation(f.convA.ID)
	assert.False(t, ok)
	_, ok = f.a.Conversation(f.convB.ID)
	assert.False(t, ok)
	_, ok = f.a.ContactByName("Bob")
	assert.True(t, ok)
}

func TestCountConversationsDependentOn(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 2, f.a.CountConversationsDependentOn([]model.ID{f.local.ID}))
	assert.Equal(t, 1, f.a.CountConversationsDependentOn([]model.ID{f.alice.ID}))
	assert.Equal(t, 0, f.a.CountConversationsDependentOn(nil))
}

func TestWipe(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.a.Wipe())

	groups := f.a.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, IdentitiesGroupName, groups[0].Name)
	assert.Empty(t, f.a.ContactsIn(f.a.IdentitiesGroupID()))
	assert.Equal(t, 0, f.a.ConversationCount())
}
