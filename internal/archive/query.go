package archive

import (
	"sort"

	"github.com/chatvault/chatvault/internal/model"
)

// SortKey is one component of a lexicographic conversation sort.
type SortKey string

const (
	SortDate        SortKey = "date"
	SortContactName SortKey = "contact"
	SortAccountName SortKey = "account"
	SortType        SortKey = "type"
)

// ConversationsQuery narrows and orders the conversation listing. Any
// non-empty filter component narrows the result; an empty query returns
// everything. Groups and contacts are expanded to their accounts at query
// time, so a structurally changed filter source can never serve stale
// expansions. Selecting the whole Identities group means "no restriction on
// the local side", by convention.
type ConversationsQuery struct {
	Groups        []model.ID
	Contacts      []model.ID
	Accounts      []model.ID
	Conversations []model.ID

	Sort   []SortKey
	Offset int
	Limit  int // zero means no limit
}

// QueryConversations returns the page of conversations matching the query.
func (a *Archive) QueryConversations(q ConversationsQuery) []model.Conversation {
	identity, regular := a.expandFilterAccounts(q)

	var convIDs map[model.ID]struct{}
	if len(q.Conversations) > 0 {
		convIDs = make(map[model.ID]struct{}, len(q.Conversations))
		for _, id := range q.Conversations {
			convIDs[id] = struct{}{}
		}
	}

	var out []model.Conversation
	for _, id := range a.convOrder {
		c := a.conversations[id]
		if convIDs != nil {
			if _, ok := convIDs[id]; !ok {
				continue
			}
		}
		if len(identity) > 0 {
			if _, ok := identity[c.LocalAccountID]; !ok {
				continue
			}
		}
		if len(regular) > 0 && !a.conversationDependsOn(c, regular) {
			continue
		}
		out = append(out, copyConversation(c))
	}

	a.sortConversations(out, q.Sort)

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out
}

// expandFilterAccounts derives the identity and regular account sets from
// the query's groups, contacts and accounts.
func (a *Archive) expandFilterAccounts(q ConversationsQuery) (identity, regular map[model.ID]struct{}) {
	identity = make(map[model.ID]struct{})
	regular = make(map[model.ID]struct{})

	wholeIdentities := false
	var contactIDs []model.ID
	for _, gid := range q.Groups {
		if gid == a.identities {
			wholeIdentities = true
			continue
		}
		contactIDs = append(contactIDs, a.contactsByGroup[gid]...)
	}
	contactIDs = append(contactIDs, q.Contacts...)

	add := func(accountID model.ID) {
		if a.IsIdentityAccount(accountID) {
			identity[accountID] = struct{}{}
		} else {
			regular[accountID] = struct{}{}
		}
	}
	for _, cid := range contactIDs {
		for _, aid := range a.accountsByContact[cid] {
			add(aid)
		}
	}
	for _, aid := range q.Accounts {
		if _, ok := a.accounts[aid]; ok {
			add(aid)
		}
	}
	if wholeIdentities {
		identity = nil
	}
	return identity, regular
}

func (a *Archive) sortConversations(convs []model.Conversation, keys []SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(convs, func(i, j int) bool {
		for _, k := range keys {
			switch c := a.compareBy(k, &convs[i], &convs[j]); {
			case c < 0:
				return true
			case c > 0:
				return false
			}
		}
		return false
	})
}

func (a *Archive) compareBy(key SortKey, x, y *model.Conversation) int {
	switch key {
	case SortDate:
		switch {
		case x.DateStarted.Before(y.DateStarted):
			return -1
		case x.DateStarted.After(y.DateStarted):
			return 1
		}
	case SortContactName:
		return compareStrings(a.remoteContactName(x), a.remoteContactName(y))
	case SortAccountName:
		return compareStrings(a.remoteAccountName(x), a.remoteAccountName(y))
	case SortType:
		switch {
		case !x.Conference && y.Conference:
			return -1
		case x.Conference && !y.Conference:
			return 1
		}
	}
	return 0
}

func (a *Archive) remoteContactName(c *model.Conversation) string {
	acc, ok := a.accounts[c.RemoteAccountID]
	if !ok {
		return ""
	}
	contact, ok := a.contacts[acc.ContactID]
	if !ok {
		return ""
	}
	return contact.Name
}

func (a *Archive) remoteAccountName(c *model.Conversation) string {
	acc, ok := a.accounts[c.RemoteAccountID]
	if !ok {
		return ""
	}
	return acc.Name
}

func compareStrings(x, y string) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}
