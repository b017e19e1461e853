package logparse

import "io"

// MemoryParser serves pre-built conversations from memory. Tests and
// fixtures use it in place of a real format scanner.
type MemoryParser struct {
	Conversations []MemoryConversation
}

// MemoryConversation pairs a location with its events.
type MemoryConversation struct {
	Location ConversationLocation
	Events   []RawEvent
}

func (p *MemoryParser) Scan(path string) ([]ConversationLocation, error) {
	locs := make([]ConversationLocation, 0, len(p.Conversations))
	for _, c := range p.Conversations {
		locs = append(locs, c.Location)
	}
	return locs, nil
}

func (p *MemoryParser) Read(loc ConversationLocation) (EventReader, error) {
	for _, c := range p.Conversations {
		if c.Location == loc {
			return &sliceReader{events: c.Events}, nil
		}
	}
	return &sliceReader{}, nil
}

type sliceReader struct {
	events []RawEvent
	pos    int
}

func (r *sliceReader) Next() (RawEvent, error) {
	if r.pos >= len(r.events) {
		return RawEvent{}, io.EOF
	}
	ev := r.events[r.pos]
	r.pos++
	return ev, nil
}

func (r *sliceReader) Close() error { return nil }
