package model

import "time"

// ID is an opaque entity identifier assigned by the archive at creation.
// Zero is never a valid ID.
type ID int64

// EntityKind discriminates entity references in change events and filters.
type EntityKind string

const (
	KindGroup        EntityKind = "group"
	KindContact      EntityKind = "contact"
	KindAccount      EntityKind = "account"
	KindConversation EntityKind = "conversation"
	KindSpeaker      EntityKind = "speaker"
	KindReply        EntityKind = "reply"
)

// Ref identifies one entity of any kind.
type Ref struct {
	Kind EntityKind
	ID   ID
}

// Group is a named, ordered bucket of contacts. The group at position 0 of
// every archive is the Identities group holding the archive owner's own
// contacts; it cannot be renamed, moved, merged, or deleted.
type Group struct {
	ID   ID
	Name string
}

// Contact is a person, owned by exactly one group. A contact is an identity
// iff its owning group is the Identities group; the status is derived, never
// stored.
type Contact struct {
	ID      ID
	GroupID ID
	Name    string
}

// Account is a per-service handle owned by exactly one contact.
// (Service, Name) is unique archive-wide.
type Account struct {
	ID        ID
	ContactID ID
	Service   string
	Name      string
}

// Key returns the archive-wide uniqueness key of the account.
func (a Account) Key() AccountKey { return AccountKey{Service: a.Service, Name: a.Name} }

// AccountKey is the (service, name) pair identifying an account across
// archives, independent of IDs.
type AccountKey struct {
	Service string
	Name    string
}

func (k AccountKey) String() string { return k.Service + ":" + k.Name }

// Speaker is a display name participating in one conversation, resolved to an
// account. AccountID is zero only transiently during import; a committed
// archive never contains an unresolved speaker.
type Speaker struct {
	ID        ID
	Name      string
	AccountID ID
}

// Reply is a single message line. Replies are ordered by insertion, not by
// date: source logs carry approximate and occasionally out-of-order stamps.
// SpeakerID zero means a system line with no attributed speaker.
type Reply struct {
	ID        ID
	Date      time.Time
	SpeakerID ID
	Text      string
}

// Conversation is one chat session between a local (identity) account and a
// remote (regular) account, with its ordered speakers and replies.
type Conversation struct {
	ID              ID
	DateStarted     time.Time
	LocalAccountID  ID
	RemoteAccountID ID
	Conference      bool
	Speakers        []Speaker
	Replies         []Reply
}

// FreeAccount is a (service, name) pair observed during import before any
// contact or group exists to own it.
type FreeAccount struct {
	Service string
	Name    string
}

func (f FreeAccount) Key() AccountKey { return AccountKey{Service: f.Service, Name: f.Name} }

// Alias is a display name seen in raw logs that the user can map to a
// FreeAccount during import. Resolution nil means still unresolved.
type Alias struct {
	Service    string
	Name       string
	Resolution *FreeAccount
}
