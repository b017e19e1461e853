// Package store defines the durable persistence contract for archives.
// Implementations live under internal/store/<driver>/ (sqlite, postgres)
// and are exercised by the storetest compliance suite.
package store

import (
	"context"
	"time"
)

// Store exposes CRUD and id assignment for the five entity kinds. All
// operations are synchronous; failures surface as errors wrapping
// model.ErrStore where the driver can classify them.
type Store interface {
	Archives() Archives
	Groups() Groups
	Contacts() Contacts
	Accounts() Accounts
	Conversations() Conversations
}

// HealthPinger is implemented by drivers that can verify connectivity.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}

type ArchiveRow struct {
	ID   int64
	Name string
}

type GroupRow struct {
	ID        int64
	ArchiveID int64
	Name      string
	Position  int
}

type ContactRow struct {
	ID      int64
	GroupID int64
	Name    string
}

type AccountRow struct {
	ID        int64
	ContactID int64
	Service   string
	Name      string
}

type ConversationRow struct {
	ID              int64
	ArchiveID       int64
	DateStarted     time.Time
	LocalAccountID  int64
	RemoteAccountID int64
	Conference      bool
}

type SpeakerRow struct {
	ID             int64
	ConversationID int64
	Position       int
	Name           string
	AccountID      int64 // zero means no account (never the case once committed)
}

type ReplyRow struct {
	ID             int64
	ConversationID int64
	Position       int
	Date           time.Time
	SpeakerID      int64 // zero means system line
	Text           string
}

type Archives interface {
	Create(ctx context.Context, name string) (int64, error)
	List(ctx context.Context) ([]ArchiveRow, error)
	Delete(ctx context.Context, id int64) error
}

type Groups interface {
	Create(ctx context.Context, row GroupRow) (int64, error)
	Rename(ctx context.Context, id int64, name string) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, archiveID int64) ([]GroupRow, error)
}

type Contacts interface {
	Create(ctx context.Context, row ContactRow) (int64, error)
	Rename(ctx context.Context, id int64, name string) error
	Move(ctx context.Context, id, groupID int64) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, archiveID int64) ([]ContactRow, error)
}

type Accounts interface {
	Create(ctx context.Context, row AccountRow) (int64, error)
	Rename(ctx context.Context, id int64, name string) error
	Move(ctx context.Context, id, contactID int64) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, archiveID int64) ([]AccountRow, error)
}

type Conversations interface {
	Create(ctx context.Context, row ConversationRow) (int64, error)
	AddSpeaker(ctx context.Context, row SpeakerRow) (int64, error)
	AddReply(ctx context.Context, row ReplyRow) (int64, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, archiveID int64) ([]ConversationRow, error)
	Speakers(ctx context.Context, conversationID int64) ([]SpeakerRow, error)
	Replies(ctx context.Context, conversationID int64) ([]ReplyRow, error)
	Count(ctx context.Context, archiveID int64) (int, error)
	CountReplies(ctx context.Context, archiveID int64) (int, error)
	// CountDependentOn counts conversations in which any given account
	// appears as local, remote, or speaker.
	CountDependentOn(ctx context.Context, archiveID int64, accountIDs []int64) (int, error)
}
