package archive

import (
	"fmt"
	"time"

	"github.com/chatvault/chatvault/internal/model"
)

// Mutations validate everything up front and only then touch the arena and
// its indices: an operation either fully applies or fully rejects.

// CreateGroup creates a group, or returns the existing group with the same
// name. Groups are appended at the end of the positional order.
func (a *Archive) CreateGroup(name string) (model.Group, error) {
	if name == "" {
		return model.Group{}, fmt.Errorf("create group: %w", model.ErrEmptyName)
	}
	if id, ok := a.groupByName[name]; ok {
		return a.groups[id], nil
	}
	id := a.allocID()
	g := model.Group{ID: id, Name: name}
	a.groups[id] = g
	a.groupOrder = append(a.groupOrder, id)
	a.groupByName[name] = id
	a.emit(EventAdded, model.Ref{Kind: model.KindGroup, ID: id})
	return g, nil
}

// CreateContact creates a contact under the given group, or returns the
// existing contact when one with the same name already lives there. A name
// held by a contact in another group is a duplicate: contact names are
// unique archive-wide.
func (a *Archive) CreateContact(groupID model.ID, name string) (model.Contact, error) {
	if name == "" {
		return model.Contact{}, fmt.Errorf("create contact: %w", model.ErrEmptyName)
	}
	if _, ok := a.groups[groupID]; !ok {
		return model.Contact{}, fmt.Errorf("create contact: group %d: %w", groupID, model.ErrNotFound)
	}
	if id, ok := a.contactByName[name]; ok {
		existing := a.contacts[id]
		if existing.GroupID == groupID {
			return existing, nil
		}
		return model.Contact{}, fmt.Errorf("create contact %q: %w", name, model.ErrDuplicateName)
	}
	id := a.allocID()
	c := model.Contact{ID: id, GroupID: groupID, Name: name}
	a.contacts[id] = c
	a.contactsByGroup[groupID] = append(a.contactsByGroup[groupID], id)
	a.contactByName[name] = id
	a.emit(EventAdded, model.Ref{Kind: model.KindContact, ID: id})
	return c, nil
}

// CreateAccount creates an account under the given contact, or returns the
// existing account when the (service, name) key is already owned by that
// contact. The key is unique archive-wide.
func (a *Archive) CreateAccount(contactID model.ID, service, name string) (model.Account, error) {
	if service == "" || name == "" {
		return model.Account{}, fmt.Errorf("create account: %w", model.ErrEmptyName)
	}
	if _, ok := a.contacts[contactID]; !ok {
		return model.Account{}, fmt.Errorf("create account: contact %d: %w", contactID, model.ErrNotFound)
	}
	key := model.AccountKey{Service: service, Name: name}
	if id, ok := a.accountByKey[key]; ok {
		existing := a.accounts[id]
		if existing.ContactID == contactID {
			return existing, nil
		}
		return model.Account{}, fmt.Errorf("create account %s: %w", key, model.ErrDuplicateName)
	}
	id := a.allocID()
	acc := model.Account{ID: id, ContactID: contactID, Service: service, Name: name}
	a.accounts[id] = acc
	a.accountsByContact[contactID] = append(a.accountsByContact[contactID], id)
	a.accountByKey[key] = id
	a.emit(EventAdded, model.Ref{Kind: model.KindAccount, ID: id})
	return acc, nil
}

// CreateConversation creates a conversation, or returns the existing one
// with the same (dateStarted, local, remote) key. The local account is
// expected to be an identity account and the remote a regular one; callers
// enforce this, the archive does not re-validate it.
func (a *Archive) CreateConversation(dateStarted time.Time, localAccountID, remoteAccountID model.ID, conference bool) (model.Conversation, error) {
	if _, ok := a.accounts[localAccountID]; !ok {
		return model.Conversation{}, fmt.Errorf("create conversation: local account %d: %w", localAccountID, model.ErrNotFound)
	}
	if _, ok := a.accounts[remoteAccountID]; !ok {
		return model.Conversation{}, fmt.Errorf("create conversation: remote account %d: %w", remoteAccountID, model.ErrNotFound)
	}
	key := conversationKey(dateStarted, localAccountID, remoteAccountID)
	if id, ok := a.convByKey[key]; ok {
		return copyConversation(a.conversations[id]), nil
	}
	id := a.allocID()
	c := &model.Conversation{
		ID:              id,
		DateStarted:     dateStarted,
		LocalAccountID:  localAccountID,
		RemoteAccountID: remoteAccountID,
		Conference:      conference,
	}
	a.conversations[id] = c
	a.convOrder = append(a.convOrder, id)
	a.convByKey[key] = id
	a.emit(EventAdded, model.Ref{Kind: model.KindConversation, ID: id})
	return copyConversation(c), nil
}

// AddSpeaker appends a speaker to a conversation, or returns the existing
// speaker with the same name. AccountID zero is allowed transiently during
// import.
func (a *Archive) AddSpeaker(conversationID model.ID, name string, accountID model.ID) (model.Speaker, error) {
	c, ok := a.conversations[conversationID]
	if !ok {
		return model.Speaker{}, fmt.Errorf("add speaker: conversation %d: %w", conversationID, model.ErrNotFound)
	}
	if name == "" {
		return model.Speaker{}, fmt.Errorf("add speaker: %w", model.ErrEmptyName)
	}
	if accountID != 0 {
		if _, ok := a.accounts[accountID]; !ok {
			return model.Speaker{}, fmt.Errorf("add speaker: account %d: %w", accountID, model.ErrNotFound)
		}
	}
	for _, s := range c.Speakers {
		if s.Name == name {
			return s, nil
		}
	}
	s := model.Speaker{ID: a.allocID(), Name: name, AccountID: accountID}
	c.Speakers = append(c.Speakers, s)
	a.emit(EventUpdated, model.Ref{Kind: model.KindConversation, ID: conversationID})
	return s, nil
}

// AppendReply appends a reply to a conversation. Replies keep insertion
// order; dates from legacy logs may be approximate and out of order.
// SpeakerID zero attributes the reply to nobody (system line).
func (a *Archive) AppendReply(conversationID model.ID, date time.Time, speakerID model.ID, text string) (model.Reply, error) {
	c, ok := a.conversations[conversationID]
	if !ok {
		return model.Reply{}, fmt.Errorf("append reply: conversation %d: %w", conversationID, model.ErrNotFound)
	}
	if speakerID != 0 && !hasSpeaker(c, speakerID) {
		return model.Reply{}, fmt.Errorf("append reply: speaker %d: %w", speakerID, model.ErrNotFound)
	}
	r := model.Reply{ID: a.allocID(), Date: date, SpeakerID: speakerID, Text: text}
	c.Replies = append(c.Replies, r)
	a.emit(EventUpdated, model.Ref{Kind: model.KindConversation, ID: conversationID})
	return r, nil
}

func hasSpeaker(c *model.Conversation, id model.ID) bool {
	for _, s := range c.Speakers {
		if s.ID == id {
			return true
		}
	}
	return false
}

// RenameGroup renames a group. The Identities group is protected.
func (a *Archive) RenameGroup(id model.ID, newName string) (model.Group, error) {
	g, ok := a.groups[id]
	if !ok {
		return model.Group{}, fmt.Errorf("rename group %d: %w", id, model.ErrNotFound)
	}
	if id == a.identities {
		return model.Group{}, fmt.Errorf("rename group %q: %w", g.Name, model.ErrProtectedEntity)
	}
	if newName == "" {
		return model.Group{}, fmt.Errorf("rename group: %w", model.ErrEmptyName)
	}
	if other, ok := a.groupByName[newName]; ok && other != id {
		return model.Group{}, fmt.Errorf("rename group to %q: %w", newName, model.ErrDuplicateName)
	}
	if g.Name == newName {
		return g, nil
	}
	ref := model.Ref{Kind: model.KindGroup, ID: id}
	a.emit(EventUpdating, ref)
	delete(a.groupByName, g.Name)
	g.Name = newName
	a.groups[id] = g
	a.groupByName[newName] = id
	a.emit(EventUpdated, ref)
	return g, nil
}

// RenameContact renames a contact. Contact names are unique archive-wide.
func (a *Archive) RenameContact(id model.ID, newName string) (model.Contact, error) {
	c, ok := a.contacts[id]
	if !ok {
		return model.Contact{}, fmt.Errorf("rename contact %d: %w", id, model.ErrNotFound)
	}
	if newName == "" {
		return model.Contact{}, fmt.Errorf("rename contact: %w", model.ErrEmptyName)
	}
	if other, ok := a.contactByName[newName]; ok && other != id {
		return model.Contact{}, fmt.Errorf("rename contact to %q: %w", newName, model.ErrDuplicateName)
	}
	if c.Name == newName {
		return c, nil
	}
	ref := model.Ref{Kind: model.KindContact, ID: id}
	a.emit(EventUpdating, ref)
	delete(a.contactByName, c.Name)
	c.Name = newName
	a.contacts[id] = c
	a.contactByName[newName] = id
	a.emit(EventUpdated, ref)
	return c, nil
}

// RenameAccount renames an account within its service. The (service, name)
// key must stay unique archive-wide.
func (a *Archive) RenameAccount(id model.ID, newName string) (model.Account, error) {
	acc, ok := a.accounts[id]
	if !ok {
		return model.Account{}, fmt.Errorf("rename account %d: %w", id, model.ErrNotFound)
	}
	if newName == "" {
		return model.Account{}, fmt.Errorf("rename account: %w", model.ErrEmptyName)
	}
	newKey := model.AccountKey{Service: acc.Service, Name: newName}
	if other, ok := a.accountByKey[newKey]; ok && other != id {
		return model.Account{}, fmt.Errorf("rename account to %s: %w", newKey, model.ErrDuplicateName)
	}
	if acc.Name == newName {
		return acc, nil
	}
	ref := model.Ref{Kind: model.KindAccount, ID: id}
	a.emit(EventUpdating, ref)
	delete(a.accountByKey, acc.Key())
	acc.Name = newName
	a.accounts[id] = acc
	a.accountByKey[newKey] = id
	a.emit(EventUpdated, ref)
	return acc, nil
}

// MoveContact moves a contact into another group. Moves may not cross the
// identity/regular boundary, and an identity contact may not be moved at
// all.
func (a *Archive) MoveContact(contactID, newGroupID model.ID) (model.Contact, error) {
	c, ok := a.contacts[contactID]
	if !ok {
		return model.Contact{}, fmt.Errorf("move contact %d: %w", contactID, model.ErrNotFound)
	}
	if _, ok := a.groups[newGroupID]; !ok {
		return model.Contact{}, fmt.Errorf("move contact: group %d: %w", newGroupID, model.ErrNotFound)
	}
	if c.GroupID == newGroupID {
		return c, nil
	}
	if c.GroupID == a.identities || newGroupID == a.identities {
		return model.Contact{}, fmt.Errorf("move contact %q: %w", c.Name, model.ErrInvalidMove)
	}
	ref := model.Ref{Kind: model.KindContact, ID: contactID}
	a.emit(EventMoving, ref)
	a.contactsByGroup[c.GroupID] = removeID(a.contactsByGroup[c.GroupID], contactID)
	c.GroupID = newGroupID
	a.contacts[contactID] = c
	a.contactsByGroup[newGroupID] = append(a.contactsByGroup[newGroupID], contactID)
	a.emit(EventMoved, ref)
	return c, nil
}

// MoveAccount moves an account to another contact of the same
// identity/regular classification.
func (a *Archive) MoveAccount(accountID, newContactID model.ID) (model.Account, error) {
	acc, ok := a.accounts[accountID]
	if !ok {
		return model.Account{}, fmt.Errorf("move account %d: %w", accountID, model.ErrNotFound)
	}
	if _, ok := a.contacts[newContactID]; !ok {
		return model.Account{}, fmt.Errorf("move account: contact %d: %w", newContactID, model.ErrNotFound)
	}
	if acc.ContactID == newContactID {
		return acc, nil
	}
	if a.IsIdentityContact(acc.ContactID) != a.IsIdentityContact(newContactID) {
		return model.Account{}, fmt.Errorf("move account %s: %w", acc.Key(), model.ErrInvalidMove)
	}
	ref := model.Ref{Kind: model.KindAccount, ID: accountID}
	a.emit(EventMoving, ref)
	a.accountsByContact[acc.ContactID] = removeID(a.accountsByContact[acc.ContactID], accountID)
	acc.ContactID = newContactID
	a.accounts[accountID] = acc
	a.accountsByContact[newContactID] = append(a.accountsByContact[newContactID], accountID)
	a.emit(EventMoved, ref)
	return acc, nil
}

// MergeGroups reparents every contact of src into dst, then deletes src.
// Merging a group with itself is a no-op. The Identities group may be
// neither side of a merge.
func (a *Archive) MergeGroups(srcID, dstID model.ID) error {
	if srcID == dstID {
		return nil
	}
	src, ok := a.groups[srcID]
	if !ok {
		return fmt.Errorf("merge group %d: %w", srcID, model.ErrNotFound)
	}
	if _, ok := a.groups[dstID]; !ok {
		return fmt.Errorf("merge into group %d: %w", dstID, model.ErrNotFound)
	}
	if srcID == a.identities || dstID == a.identities {
		return fmt.Errorf("merge group %q: %w", src.Name, model.ErrProtectedEntity)
	}
	for _, cid := range append([]model.ID(nil), a.contactsByGroup[srcID]...) {
		if _, err := a.MoveContact(cid, dstID); err != nil {
			return err
		}
	}
	return a.DeleteGroup(srcID)
}

// MergeContacts reparents every account of src into dst, then deletes src.
// Merging a contact with itself is a no-op; merging across the
// identity/regular boundary is forbidden.
func (a *Archive) MergeContacts(srcID, dstID model.ID) error {
	if srcID == dstID {
		return nil
	}
	src, ok := a.contacts[srcID]
	if !ok {
		return fmt.Errorf("merge contact %d: %w", srcID, model.ErrNotFound)
	}
	if _, ok := a.contacts[dstID]; !ok {
		return fmt.Errorf("merge into contact %d: %w", dstID, model.ErrNotFound)
	}
	if a.IsIdentityContact(srcID) != a.IsIdentityContact(dstID) {
		return fmt.Errorf("merge contact %q: %w", src.Name, model.ErrProtectedEntity)
	}
	for _, aid := range append([]model.ID(nil), a.accountsByContact[srcID]...) {
		if _, err := a.MoveAccount(aid, dstID); err != nil {
			return err
		}
	}
	return a.DeleteContact(srcID)
}

// DeleteGroup deletes a group and cascades to its contacts, their accounts,
// and every conversation referencing any of those accounts.
func (a *Archive) DeleteGroup(id model.ID) error {
	g, ok := a.groups[id]
	if !ok {
		return fmt.Errorf("delete group %d: %w", id, model.ErrNotFound)
	}
	if id == a.identities {
		return fmt.Errorf("delete group %q: %w", g.Name, model.ErrProtectedEntity)
	}
	a.emit(EventDeleting, model.Ref{Kind: model.KindGroup, ID: id})
	removed := []model.Ref{{Kind: model.KindGroup, ID: id}}
	accounts := make(map[model.ID]struct{})
	for _, cid := range append([]model.ID(nil), a.contactsByGroup[id]...) {
		removed = a.removeContact(cid, accounts, removed)
	}
	delete(a.groupByName, g.Name)
	delete(a.groups, id)
	delete(a.contactsByGroup, id)
	a.groupOrder = removeID(a.groupOrder, id)
	removed = a.removeDependentConversations(accounts, removed)
	a.emit(EventDeleted, removed...)
	return nil
}

// DeleteContact deletes a contact, its accounts, and every conversation
// referencing any of those accounts.
func (a *Archive) DeleteContact(id model.ID) error {
	if _, ok := a.contacts[id]; !ok {
		return fmt.Errorf("delete contact %d: %w", id, model.ErrNotFound)
	}
	a.emit(EventDeleting, model.Ref{Kind: model.KindContact, ID: id})
	accounts := make(map[model.ID]struct{})
	removed := a.removeContact(id, accounts, nil)
	removed = a.removeDependentConversations(accounts, removed)
	a.emit(EventDeleted, removed...)
	return nil
}

// DeleteAccount deletes an account and every conversation referencing it as
// local, remote, or speaker.
func (a *Archive) DeleteAccount(id model.ID) error {
	if _, ok := a.accounts[id]; !ok {
		return fmt.Errorf("delete account %d: %w", id, model.ErrNotFound)
	}
	a.emit(EventDeleting, model.Ref{Kind: model.KindAccount, ID: id})
	removed := a.removeAccount(id, nil)
	removed = a.removeDependentConversations(map[model.ID]struct{}{id: {}}, removed)
	a.emit(EventDeleted, removed...)
	return nil
}

// DeleteConversation deletes a single conversation.
func (a *Archive) DeleteConversation(id model.ID) error {
	c, ok := a.conversations[id]
	if !ok {
		return fmt.Errorf("delete conversation %d: %w", id, model.ErrNotFound)
	}
	a.emit(EventDeleting, model.Ref{Kind: model.KindConversation, ID: id})
	a.removeConversation(c)
	a.emit(EventDeleted, model.Ref{Kind: model.KindConversation, ID: id})
	return nil
}

// Wipe deletes every conversation, every group but Identities, and every
// contact including the identity contacts. Runs as one batched change.
func (a *Archive) Wipe() error {
	return a.Batch(func() error {
		for _, id := range append([]model.ID(nil), a.convOrder...) {
			a.removeConversation(a.conversations[id])
		}
		for _, gid := range append([]model.ID(nil), a.groupOrder...) {
			if gid == a.identities {
				continue
			}
			if err := a.DeleteGroup(gid); err != nil {
				return err
			}
		}
		for _, cid := range append([]model.ID(nil), a.contactsByGroup[a.identities]...) {
			if err := a.DeleteContact(cid); err != nil {
				return err
			}
		}
		return nil
	})
}

// removeContact unindexes a contact and its accounts, accumulating removed
// refs and account ids for the conversation cascade.
func (a *Archive) removeContact(id model.ID, accounts map[model.ID]struct{}, removed []model.Ref) []model.Ref {
	c := a.contacts[id]
	for _, aid := range append([]model.ID(nil), a.accountsByContact[id]...) {
		accounts[aid] = struct{}{}
		removed = a.removeAccount(aid, removed)
	}
	a.contactsByGroup[c.GroupID] = removeID(a.contactsByGroup[c.GroupID], id)
	delete(a.contactByName, c.Name)
	delete(a.contacts, id)
	delete(a.accountsByContact, id)
	return append(removed, model.Ref{Kind: model.KindContact, ID: id})
}

func (a *Archive) removeAccount(id model.ID, removed []model.Ref) []model.Ref {
	acc := a.accounts[id]
	a.accountsByContact[acc.ContactID] = removeID(a.accountsByContact[acc.ContactID], id)
	delete(a.accountByKey, acc.Key())
	delete(a.accounts, id)
	return append(removed, model.Ref{Kind: model.KindAccount, ID: id})
}

func (a *Archive) removeDependentConversations(accounts map[model.ID]struct{}, removed []model.Ref) []model.Ref {
	if len(accounts) == 0 {
		return removed
	}
	var doomed []*model.Conversation
	for _, id := range a.convOrder {
		c := a.conversations[id]
		if a.conversationDependsOn(c, accounts) {
			doomed = append(doomed, c)
		}
	}
	for _, c := range doomed {
		a.removeConversation(c)
		removed = append(removed, model.Ref{Kind: model.KindConversation, ID: c.ID})
	}
	if len(doomed) > 0 {
		a.emit(EventConversationsInvalidated)
	}
	return removed
}

func (a *Archive) removeConversation(c *model.Conversation) {
	delete(a.convByKey, conversationKey(c.DateStarted, c.LocalAccountID, c.RemoteAccountID))
	delete(a.conversations, c.ID)
	a.convOrder = removeID(a.convOrder, c.ID)
}

func removeID(ids []model.ID, id model.ID) []model.ID {
	for i, x := range ids {
		if x == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
