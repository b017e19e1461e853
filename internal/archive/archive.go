// Package archive implements the in-memory entity graph of a message
// archive: groups, contacts, accounts and conversations held in an arena
// keyed by integer id, with forward and reverse index tables kept in sync by
// every mutation. Entity handles returned to callers are plain value copies;
// navigation goes back through the archive, so a rename or move can never
// leave a caller holding a dangling reference.
//
// The archive has no internal locking: it is single-writer by contract, with
// callers serializing all mutations behind one logical owner.
package archive

import (
	"fmt"
	"time"

	"github.com/chatvault/chatvault/internal/model"
)

// IdentitiesGroupName is the fixed name of the group holding the archive
// owner's own contacts. The group is created with the archive, sits at
// position 0, and is never renamed, moved, merged, or deleted.
const IdentitiesGroupName = "Identities"

type convKey struct {
	date   int64
	local  model.ID
	remote model.ID
}

// Archive is the root of the entity graph.
type Archive struct {
	nextID model.ID

	groups        map[model.ID]model.Group
	groupOrder    []model.ID
	contacts      map[model.ID]model.Contact
	accounts      map[model.ID]model.Account
	conversations map[model.ID]*model.Conversation
	convOrder     []model.ID

	// forward indices
	contactsByGroup   map[model.ID][]model.ID
	accountsByContact map[model.ID][]model.ID

	// lookup indices
	groupByName   map[string]model.ID
	contactByName map[string]model.ID
	accountByKey  map[model.AccountKey]model.ID
	convByKey     map[convKey]model.ID

	identities model.ID

	listeners  []*listener
	nextToken  int
	batchDepth int
}

// New returns an empty archive containing only the Identities group.
func New() *Archive {
	a := &Archive{
		groups:            make(map[model.ID]model.Group),
		contacts:          make(map[model.ID]model.Contact),
		accounts:          make(map[model.ID]model.Account),
		conversations:     make(map[model.ID]*model.Conversation),
		contactsByGroup:   make(map[model.ID][]model.ID),
		accountsByContact: make(map[model.ID][]model.ID),
		groupByName:       make(map[string]model.ID),
		contactByName:     make(map[string]model.ID),
		accountByKey:      make(map[model.AccountKey]model.ID),
		convByKey:         make(map[convKey]model.ID),
	}
	id := a.allocID()
	a.groups[id] = model.Group{ID: id, Name: IdentitiesGroupName}
	a.groupOrder = append(a.groupOrder, id)
	a.groupByName[IdentitiesGroupName] = id
	a.identities = id
	return a
}

func (a *Archive) allocID() model.ID {
	a.nextID++
	return a.nextID
}

// IdentitiesGroup returns the archive's Identities group.
func (a *Archive) IdentitiesGroup() model.Group { return a.groups[a.identities] }

// IdentitiesGroupID returns the id of the Identities group.
func (a *Archive) IdentitiesGroupID() model.ID { return a.identities }

// Group returns the group with the given id.
func (a *Archive) Group(id model.ID) (model.Group, bool) {
	g, ok := a.groups[id]
	return g, ok
}

// GroupByName returns the group with the given name.
func (a *Archive) GroupByName(name string) (model.Group, bool) {
	id, ok := a.groupByName[name]
	if !ok {
		return model.Group{}, false
	}
	return a.groups[id], true
}

// Groups returns all groups in positional order; index 0 is always the
// Identities group.
func (a *Archive) Groups() []model.Group {
	out := make([]model.Group, 0, len(a.groupOrder))
	for _, id := range a.groupOrder {
		out = append(out, a.groups[id])
	}
	return out
}

// Contact returns the contact with the given id.
func (a *Archive) Contact(id model.ID) (model.Contact, bool) {
	c, ok := a.contacts[id]
	return c, ok
}

// ContactByName returns the contact with the given name. Contact names are
// unique archive-wide, not just within a group.
func (a *Archive) ContactByName(name string) (model.Contact, bool) {
	id, ok := a.contactByName[name]
	if !ok {
		return model.Contact{}, false
	}
	return a.contacts[id], true
}

// ContactsIn returns the contacts owned by a group, in creation order.
func (a *Archive) ContactsIn(groupID model.ID) []model.Contact {
	ids := a.contactsByGroup[groupID]
	out := make([]model.Contact, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.contacts[id])
	}
	return out
}

// Account returns the account with the given id.
func (a *Archive) Account(id model.ID) (model.Account, bool) {
	acc, ok := a.accounts[id]
	return acc, ok
}

// AccountByKey returns the account with the given (service, name) key.
func (a *Archive) AccountByKey(key model.AccountKey) (model.Account, bool) {
	id, ok := a.accountByKey[key]
	if !ok {
		return model.Account{}, false
	}
	return a.accounts[id], true
}

// AccountsOf returns the accounts owned by a contact, in creation order.
func (a *Archive) AccountsOf(contactID model.ID) []model.Account {
	ids := a.accountsByContact[contactID]
	out := make([]model.Account, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.accounts[id])
	}
	return out
}

// Conversation returns a copy of the conversation with the given id,
// including its speakers and replies.
func (a *Archive) Conversation(id model.ID) (model.Conversation, bool) {
	c, ok := a.conversations[id]
	if !ok {
		return model.Conversation{}, false
	}
	return copyConversation(c), true
}

// Conversations returns copies of all conversations in insertion order.
func (a *Archive) Conversations() []model.Conversation {
	out := make([]model.Conversation, 0, len(a.convOrder))
	for _, id := range a.convOrder {
		out = append(out, copyConversation(a.conversations[id]))
	}
	return out
}

// ConversationCount returns the number of conversations.
func (a *Archive) ConversationCount() int { return len(a.convOrder) }

// IsIdentityContact reports whether the contact lives in the Identities
// group. The classification is derived from ownership, never stored.
func (a *Archive) IsIdentityContact(id model.ID) bool {
	c, ok := a.contacts[id]
	return ok && c.GroupID == a.identities
}

// IsIdentityAccount reports whether the account's owning contact is an
// identity contact.
func (a *Archive) IsIdentityAccount(id model.ID) bool {
	acc, ok := a.accounts[id]
	return ok && a.IsIdentityContact(acc.ContactID)
}

// CountConversationsDependentOn returns the number of conversations in which
// any of the given accounts appears as local, remote, or speaker.
func (a *Archive) CountConversationsDependentOn(accountIDs []model.ID) int {
	set := make(map[model.ID]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		set[id] = struct{}{}
	}
	n := 0
	for _, id := range a.convOrder {
		if a.conversationDependsOn(a.conversations[id], set) {
			n++
		}
	}
	return n
}

func (a *Archive) conversationDependsOn(c *model.Conversation, accounts map[model.ID]struct{}) bool {
	if _, ok := accounts[c.LocalAccountID]; ok {
		return true
	}
	if _, ok := accounts[c.RemoteAccountID]; ok {
		return true
	}
	for _, s := range c.Speakers {
		if _, ok := accounts[s.AccountID]; ok {
			return true
		}
	}
	return false
}

func copyConversation(c *model.Conversation) model.Conversation {
	out := *c
	out.Speakers = append([]model.Speaker(nil), c.Speakers...)
	out.Replies = append([]model.Reply(nil), c.Replies...)
	return out
}

func conversationKey(date time.Time, local, remote model.ID) convKey {
	return convKey{date: date.UnixNano(), local: local, remote: remote}
}

func (a *Archive) String() string {
	return fmt.Sprintf("archive{groups=%d contacts=%d accounts=%d conversations=%d}",
		len(a.groups), len(a.contacts), len(a.accounts), len(a.convOrder))
}
