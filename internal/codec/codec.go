// Package codec serializes an archive to and from its JSON document form.
// Accounts are addressed by a "service:name" string id within the document;
// dates carry a four-digit sub-second field.
package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chatvault/chatvault/internal/archive"
	"github.com/chatvault/chatvault/internal/model"
)

type document struct {
	Identities    []contactDoc      `json:"identities"`
	Groups        []groupDoc        `json:"groups"`
	Conversations []conversationDoc `json:"conversations"`
}

type groupDoc struct {
	Name     string       `json:"name"`
	Contacts []contactDoc `json:"contacts"`
}

type contactDoc struct {
	Name     string       `json:"name"`
	Accounts []accountDoc `json:"accounts"`
}

type accountDoc struct {
	ID string `json:"id"` // "service:name"
}

type conversationDoc struct {
	Date       string       `json:"date"`
	Local      string       `json:"local"`
	Remote     string       `json:"remote"`
	Conference bool         `json:"conference"`
	Speakers   []speakerDoc `json:"speakers"`
	Replies    []replyDoc   `json:"replies"`
}

type speakerDoc struct {
	Name    string `json:"name"`
	Account string `json:"account,omitempty"`
}

type replyDoc struct {
	Date    string `json:"date"`
	Speaker *int   `json:"speaker,omitempty"` // index into speakers
	Text    string `json:"text"`
}

const dateLayout = "2006-01-02 15:04:05"

// formatDate renders a date as "yyyy-MM-dd HH:mm:ss:SSSS" in UTC, the
// sub-second field counting ten-thousandths of a second.
func formatDate(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s:%04d", t.Format(dateLayout), t.Nanosecond()/100_000)
}

func parseDate(s string) (time.Time, error) {
	i := strings.LastIndex(s, ":")
	if i < 0 || i != len(dateLayout) {
		return time.Time{}, fmt.Errorf("%w: bad date %q", model.ErrParse, s)
	}
	base, err := time.ParseInLocation(dateLayout, s[:i], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", model.ErrParse, s)
	}
	var sub int
	if _, err := fmt.Sscanf(s[i+1:], "%04d", &sub); err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", model.ErrParse, s)
	}
	return base.Add(time.Duration(sub) * 100 * time.Microsecond), nil
}

func accountID(a model.Account) string { return a.Service + ":" + a.Name }

func parseAccountID(id string) (model.AccountKey, error) {
	service, name, ok := strings.Cut(id, ":")
	if !ok || service == "" || name == "" {
		return model.AccountKey{}, fmt.Errorf("%w: bad account id %q", model.ErrParse, id)
	}
	return model.AccountKey{Service: service, Name: name}, nil
}

// Encode writes the archive as a JSON document.
func Encode(w io.Writer, a *archive.Archive) error {
	doc := document{
		Identities:    []contactDoc{},
		Groups:        []groupDoc{},
		Conversations: []conversationDoc{},
	}
	for _, g := range a.Groups() {
		if g.ID == a.IdentitiesGroupID() {
			doc.Identities = encodeContacts(a, g.ID)
			continue
		}
		doc.Groups = append(doc.Groups, groupDoc{Name: g.Name, Contacts: encodeContacts(a, g.ID)})
	}
	for _, c := range a.Conversations() {
		cd, err := encodeConversation(a, c)
		if err != nil {
			return err
		}
		doc.Conversations = append(doc.Conversations, cd)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func encodeContacts(a *archive.Archive, groupID model.ID) []contactDoc {
	out := []contactDoc{}
	for _, c := range a.ContactsIn(groupID) {
		cd := contactDoc{Name: c.Name, Accounts: []accountDoc{}}
		for _, acc := range a.AccountsOf(c.ID) {
			cd.Accounts = append(cd.Accounts, accountDoc{ID: accountID(acc)})
		}
		out = append(out, cd)
	}
	return out
}

func encodeConversation(a *archive.Archive, c model.Conversation) (conversationDoc, error) {
	local, ok := a.Account(c.LocalAccountID)
	if !ok {
		return conversationDoc{}, fmt.Errorf("conversation %d: local account: %w", c.ID, model.ErrNotFound)
	}
	remote, ok := a.Account(c.RemoteAccountID)
	if !ok {
		return conversationDoc{}, fmt.Errorf("conversation %d: remote account: %w", c.ID, model.ErrNotFound)
	}
	cd := conversationDoc{
		Date:       formatDate(c.DateStarted),
		Local:      accountID(local),
		Remote:     accountID(remote),
		Conference: c.Conference,
		Speakers:   []speakerDoc{},
		Replies:    []replyDoc{},
	}
	index := make(map[model.ID]int, len(c.Speakers))
	for i, s := range c.Speakers {
		sd := speakerDoc{Name: s.Name}
		if acc, ok := a.Account(s.AccountID); ok {
			sd.Account = accountID(acc)
		}
		index[s.ID] = i
		cd.Speakers = append(cd.Speakers, sd)
	}
	for _, r := range c.Replies {
		rd := replyDoc{Date: formatDate(r.Date), Text: r.Text}
		if r.SpeakerID != 0 {
			if i, ok := index[r.SpeakerID]; ok {
				rd.Speaker = &i
			}
		}
		cd.Replies = append(cd.Replies, rd)
	}
	return cd, nil
}

// Decode reads a JSON document into a fresh archive.
func Decode(r io.Reader) (*archive.Archive, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	a := archive.New()
	if err := decodeContacts(a, a.IdentitiesGroupID(), doc.Identities); err != nil {
		return nil, err
	}
	for _, gd := range doc.Groups {
		g, err := a.CreateGroup(gd.Name)
		if err != nil {
			return nil, err
		}
		if err := decodeContacts(a, g.ID, gd.Contacts); err != nil {
			return nil, err
		}
	}
	for _, cd := range doc.Conversations {
		if err := decodeConversation(a, cd); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func decodeContacts(a *archive.Archive, groupID model.ID, docs []contactDoc) error {
	for _, cd := range docs {
		c, err := a.CreateContact(groupID, cd.Name)
		if err != nil {
			return err
		}
		for _, ad := range cd.Accounts {
			key, err := parseAccountID(ad.ID)
			if err != nil {
				return err
			}
			if _, err := a.CreateAccount(c.ID, key.Service, key.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeConversation(a *archive.Archive, cd conversationDoc) error {
	date, err := parseDate(cd.Date)
	if err != nil {
		return err
	}
	local, err := lookupAccount(a, cd.Local)
	if err != nil {
		return err
	}
	remote, err := lookupAccount(a, cd.Remote)
	if err != nil {
		return err
	}
	conv, err := a.CreateConversation(date, local.ID, remote.ID, cd.Conference)
	if err != nil {
		return err
	}
	speakerIDs := make([]model.ID, len(cd.Speakers))
	for i, sd := range cd.Speakers {
		accountID := model.ID(0)
		if sd.Account != "" {
			acc, err := lookupAccount(a, sd.Account)
			if err != nil {
				return err
			}
			accountID = acc.ID
		}
		sp, err := a.AddSpeaker(conv.ID, sd.Name, accountID)
		if err != nil {
			return err
		}
		speakerIDs[i] = sp.ID
	}
	for _, rd := range cd.Replies {
		rdate, err := parseDate(rd.Date)
		if err != nil {
			return err
		}
		speakerID := model.ID(0)
		if rd.Speaker != nil {
			if *rd.Speaker < 0 || *rd.Speaker >= len(speakerIDs) {
				return fmt.Errorf("%w: reply speaker index %d out of range", model.ErrParse, *rd.Speaker)
			}
			speakerID = speakerIDs[*rd.Speaker]
		}
		if _, err := a.AppendReply(conv.ID, rdate, speakerID, rd.Text); err != nil {
			return err
		}
	}
	return nil
}

func lookupAccount(a *archive.Archive, id string) (model.Account, error) {
	key, err := parseAccountID(id)
	if err != nil {
		return model.Account{}, err
	}
	acc, ok := a.AccountByKey(key)
	if !ok {
		return model.Account{}, fmt.Errorf("account %s: %w", key, model.ErrNotFound)
	}
	return acc, nil
}
