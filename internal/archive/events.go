package archive

import "github.com/chatvault/chatvault/internal/model"

// EventKind classifies a change notification.
type EventKind string

const (
	EventAdded    EventKind = "added"
	EventDeleting EventKind = "deleting"
	EventDeleted  EventKind = "deleted"
	EventUpdating EventKind = "updating"
	EventUpdated  EventKind = "updated"
	EventMoving   EventKind = "moving"
	EventMoved    EventKind = "moved"

	// EventConversationsInvalidated signals that a structural change made
	// any cached conversation filter expansion stale.
	EventConversationsInvalidated EventKind = "conversations_invalidated"

	// EventMajorChange replaces all suppressed per-entity events of a
	// batched operation.
	EventMajorChange EventKind = "major_change"
)

// Event is one change notification. Pre-events (Deleting, Updating, Moving)
// fire before the mutation is applied, post-events after; both are delivered
// before the mutating call returns.
type Event struct {
	Kind EventKind
	Refs []model.Ref
}

type listener struct {
	token int
	fn    func(Event)
}

// Subscribe registers a listener and returns a cancel function. Listeners
// are invoked synchronously in registration order; a listener may cancel
// itself from within its own callback.
func (a *Archive) Subscribe(fn func(Event)) (cancel func()) {
	a.nextToken++
	l := &listener{token: a.nextToken, fn: fn}
	a.listeners = append(a.listeners, l)
	token := l.token
	return func() {
		for i, x := range a.listeners {
			if x.token == token {
				a.listeners = append(a.listeners[:i], a.listeners[i+1:]...)
				return
			}
		}
	}
}

// emit delivers an event to all listeners registered at time of firing.
// Individual events are suppressed inside a Batch scope.
func (a *Archive) emit(kind EventKind, refs ...model.Ref) {
	if a.batchDepth > 0 && kind != EventMajorChange {
		return
	}
	// Snapshot so listeners can unsubscribe from within their callback.
	snapshot := append([]*listener(nil), a.listeners...)
	for _, l := range snapshot {
		l.fn(Event{Kind: kind, Refs: refs})
	}
}

// Batch runs fn with per-entity events suppressed and fires exactly one
// MajorChange event afterwards, even when fn touched thousands of entities.
// Nested batches fire a single MajorChange when the outermost scope ends.
// The MajorChange fires whether or not fn returned an error: sub-operations
// may already have been applied.
func (a *Archive) Batch(fn func() error) error {
	a.batchDepth++
	err := fn()
	a.batchDepth--
	if a.batchDepth == 0 {
		a.emit(EventMajorChange)
	}
	return err
}
