// Package api exposes a read-only HTTP surface over an in-memory archive.
// Mutations happen through the CLI and import pipeline; the daemon serves
// the resulting archive for browsing.
package api

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/chatvault/chatvault/internal/api/respond"
	"github.com/chatvault/chatvault/internal/archive"
	"github.com/chatvault/chatvault/internal/model"
)

// ArchiveHandler serves archive queries. The handler owns a read-write lock
// so the daemon can swap in a new archive after an import or merge.
type ArchiveHandler struct {
	mu sync.RWMutex
	a  *archive.Archive
}

func NewArchiveHandler(a *archive.Archive) *ArchiveHandler {
	return &ArchiveHandler{a: a}
}

// Swap replaces the served archive.
func (h *ArchiveHandler) Swap(a *archive.Archive) {
	h.mu.Lock()
	h.a = a
	h.mu.Unlock()
}

type groupDTO struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Identity bool   `json:"identity"`
}

type contactDTO struct {
	ID      int64  `json:"id"`
	GroupID int64  `json:"groupId"`
	Name    string `json:"name"`
}

type accountDTO struct {
	ID        int64  `json:"id"`
	ContactID int64  `json:"contactId"`
	Service   string `json:"service"`
	Name      string `json:"name"`
}

type conversationDTO struct {
	ID         int64  `json:"id"`
	Date       string `json:"date"`
	Local      string `json:"local"`
	Remote     string `json:"remote"`
	Conference bool   `json:"conference"`
	Replies    int    `json:"replies"`
}

type replyDTO struct {
	Date    string `json:"date"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}

const dtoDateLayout = "2006-01-02T15:04:05.9999Z07:00"

func (h *ArchiveHandler) conversationDTO(c model.Conversation) conversationDTO {
	dto := conversationDTO{
		ID:         int64(c.ID),
		Date:       c.DateStarted.UTC().Format(dtoDateLayout),
		Conference: c.Conference,
		Replies:    len(c.Replies),
	}
	if acc, ok := h.a.Account(c.LocalAccountID); ok {
		dto.Local = acc.Key().String()
	}
	if acc, ok := h.a.Account(c.RemoteAccountID); ok {
		dto.Remote = acc.Key().String()
	}
	return dto
}

// ListGroups GET /api/archive/groups
func (h *ArchiveHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := []groupDTO{}
	for _, g := range h.a.Groups() {
		out = append(out, groupDTO{
			ID:       int64(g.ID),
			Name:     g.Name,
			Identity: g.ID == h.a.IdentitiesGroupID(),
		})
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"groups": out, "count": len(out)})
}

// ListContacts GET /api/archive/groups/{groupId}/contacts
func (h *ArchiveHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "groupId")
	if err != nil {
		respond.WriteBadRequest(w, "Invalid group id")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.a.Group(id); !ok {
		respond.WriteNotFound(w, "group not found")
		return
	}
	out := []contactDTO{}
	for _, c := range h.a.ContactsIn(id) {
		out = append(out, contactDTO{ID: int64(c.ID), GroupID: int64(c.GroupID), Name: c.Name})
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"contacts": out, "count": len(out)})
}

// ListAccounts GET /api/archive/contacts/{contactId}/accounts
func (h *ArchiveHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "contactId")
	if err != nil {
		respond.WriteBadRequest(w, "Invalid contact id")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.a.Contact(id); !ok {
		respond.WriteNotFound(w, "contact not found")
		return
	}
	out := []accountDTO{}
	for _, acc := range h.a.AccountsOf(id) {
		out = append(out, accountDTO{
			ID:        int64(acc.ID),
			ContactID: int64(acc.ContactID),
			Service:   acc.Service,
			Name:      acc.Name,
		})
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"accounts": out, "count": len(out)})
}

// QueryConversations GET /api/archive/conversations
// Filters arrive as comma-separated id lists: groups, contacts, accounts.
// Sorting via sort=date|contact|account|type (comma-separated for ties),
// paging via offset and limit.
func (h *ArchiveHandler) QueryConversations(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	out := []conversationDTO{}
	for _, c := range h.a.QueryConversations(q) {
		out = append(out, h.conversationDTO(c))
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": out,
		"count":         len(out),
		"total":         h.a.ConversationCount(),
	})
}

// GetConversation GET /api/archive/conversations/{conversationId}
func (h *ArchiveHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "conversationId")
	if err != nil {
		respond.WriteBadRequest(w, "Invalid conversation id")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.a.Conversation(id)
	if !ok {
		respond.WriteNotFound(w, "conversation not found")
		return
	}
	speakerNames := make(map[model.ID]string, len(c.Speakers))
	for _, s := range c.Speakers {
		speakerNames[s.ID] = s.Name
	}
	replies := []replyDTO{}
	for _, rep := range c.Replies {
		replies = append(replies, replyDTO{
			Date:    rep.Date.UTC().Format(dtoDateLayout),
			Speaker: speakerNames[rep.SpeakerID],
			Text:    rep.Text,
		})
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": h.conversationDTO(c),
		"replies":      replies,
	})
}

// GetStats GET /api/archive/stats
func (h *ArchiveHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	groups := h.a.Groups()
	contacts := 0
	accounts := 0
	for _, g := range groups {
		for _, c := range h.a.ContactsIn(g.ID) {
			contacts++
			accounts += len(h.a.AccountsOf(c.ID))
		}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"groups":        len(groups),
		"contacts":      contacts,
		"accounts":      accounts,
		"conversations": h.a.ConversationCount(),
	})
}

func pathID(r *http.Request, name string) (model.ID, error) {
	n, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, err
	}
	return model.ID(n), nil
}

func parseQuery(r *http.Request) (archive.ConversationsQuery, error) {
	var q archive.ConversationsQuery
	var err error
	if q.Groups, err = idList(r.URL.Query().Get("groups")); err != nil {
		return q, err
	}
	if q.Contacts, err = idList(r.URL.Query().Get("contacts")); err != nil {
		return q, err
	}
	if q.Accounts, err = idList(r.URL.Query().Get("accounts")); err != nil {
		return q, err
	}
	if s := r.URL.Query().Get("sort"); s != "" {
		for _, part := range strings.Split(s, ",") {
			switch part {
			case "date":
				q.Sort = append(q.Sort, archive.SortDate)
			case "contact":
				q.Sort = append(q.Sort, archive.SortContactName)
			case "account":
				q.Sort = append(q.Sort, archive.SortAccountName)
			case "type":
				q.Sort = append(q.Sort, archive.SortType)
			default:
				return q, strconv.ErrSyntax
			}
		}
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		if q.Offset, err = strconv.Atoi(s); err != nil {
			return q, err
		}
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		if q.Limit, err = strconv.Atoi(s); err != nil {
			return q, err
		}
	}
	return q, nil
}

func idList(s string) ([]model.ID, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]model.ID, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, model.ID(n))
	}
	return out, nil
}
