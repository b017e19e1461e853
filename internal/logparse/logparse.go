// Package logparse defines the normalized event stream produced by
// per-format log scanners. Raw tokenization of legacy text/HTML/XML formats
// lives behind the Parser interface; the importer consumes only normalized
// events.
package logparse

import "time"

// EventKind classifies one raw log event.
type EventKind int

const (
	Regular EventKind = iota
	System
	NameChange
	ConferenceJoin
	ConferenceLeave
)

// RawEvent is one normalized line of a legacy log.
type RawEvent struct {
	Date     time.Time
	Kind     EventKind
	Sender   string
	Receiver string // optional; only some formats carry an explicit receiver
	Text     string
}

// ConversationLocation addresses one conversation inside a scanned source.
type ConversationLocation struct {
	Path    string
	Service string
	// LocalHint and RemoteHint are the scanner's guesses for the local and
	// remote account names, typically derived from the file path.
	LocalHint  string
	RemoteHint string
	Date       time.Time
	Conference bool
}

// EventReader yields the events of one conversation lazily, so one file's
// replies need not all reside in memory at once. Next returns io.EOF after
// the last event.
type EventReader interface {
	Next() (RawEvent, error)
	Close() error
}

// Parser is a per-format scanner.
type Parser interface {
	// Scan walks a source path and locates every conversation in it.
	Scan(path string) ([]ConversationLocation, error)
	// Read opens the event stream of one located conversation.
	Read(loc ConversationLocation) (EventReader, error)
}
