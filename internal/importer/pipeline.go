// Package importer turns heterogeneous legacy chat logs into a validated
// archive through a multi-phase, human-in-the-loop pipeline. A generic
// state machine drives format-specific strategies (gaim, msn); phases
// suspend on a one-shot answer channel when they need human input and can
// re-present themselves with a validation message without losing
// accumulated parse state.
package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chatvault/chatvault/internal/archive"
	"github.com/chatvault/chatvault/internal/model"
)

// State is the pipeline lifecycle state.
type State string

const (
	StateIdle           State = "idle"
	StateRunning        State = "running"
	StateAwaitingAnswer State = "awaiting_answer"
	StateFinalizing     State = "finalizing"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
	StateCancelled      State = "cancelled"
)

// Phase is one step of a strategy. Ask produces the query to present, or
// nil to run straight through without suspending. Apply consumes the answer
// (nil when Ask returned no query); a non-empty feedback string repeats the
// phase with the same inputs after the UI shows the message.
type Phase struct {
	Name   string
	GoBack bool
	Ask    func(ctx context.Context) (Query, error)
	Apply  func(ctx context.Context, ans Answer) (feedback string, err error)
}

// Strategy is a format-specific importer. Phases are run in order; Result
// is called once after the last phase applied cleanly.
type Strategy interface {
	Format() string
	Phases() []Phase
	Result() (*archive.Archive, error)
}

// Pipeline drives one import run on a dedicated worker goroutine.
type Pipeline struct {
	id       uuid.UUID
	log      zerolog.Logger
	strategy Strategy
	onQuery  func(Envelope)

	mu      sync.Mutex
	state   State
	waiting chan Answer
	result  *archive.Archive
	runErr  error
}

// New builds a pipeline for the given strategy. onQuery is the non-blocking
// hand-off to the UI collaborator; it is invoked from the worker goroutine
// whenever the pipeline suspends.
func New(log zerolog.Logger, strategy Strategy, onQuery func(Envelope)) *Pipeline {
	if onQuery == nil {
		onQuery = func(Envelope) {}
	}
	id := uuid.New()
	return &Pipeline{
		id:       id,
		log:      log.With().Str("import_id", id.String()).Str("format", strategy.Format()).Logger(),
		strategy: strategy,
		onQuery:  onQuery,
		state:    StateIdle,
	}
}

// ID returns the run identifier.
func (p *Pipeline) ID() uuid.UUID { return p.id }

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Result returns the imported archive. It is only available once the
// pipeline completed; a cancelled or failed run never exposes a partially
// built archive.
func (p *Pipeline) Result() (*archive.Archive, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateCompleted:
		return p.result, nil
	case StateFailed:
		return nil, p.runErr
	default:
		return nil, fmt.Errorf("pipeline is %s: %w", p.state, model.ErrState)
	}
}

// Answer resumes the single waiting phase. It never blocks; answering a
// pipeline that is not suspended is a contract violation.
func (p *Pipeline) Answer(ans Answer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateAwaitingAnswer || p.waiting == nil {
		return fmt.Errorf("answer in state %s: %w", p.state, model.ErrState)
	}
	p.waiting <- ans
	p.waiting = nil
	return nil
}

// Run executes all phases on the calling goroutine, suspending on queries
// until Answer is called. Cancelling ctx unblocks any suspended wait and
// moves the pipeline to Cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.setState(StateRunning)
	err := p.run(ctx)
	switch {
	case err == nil:
		p.setState(StateCompleted)
		p.log.Info().Msg("import completed")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		p.setState(StateCancelled)
		p.log.Info().Msg("import cancelled")
	default:
		p.mu.Lock()
		p.state = StateFailed
		p.runErr = err
		p.mu.Unlock()
		p.log.Error().Err(err).Msg("import failed")
	}
	return err
}

func (p *Pipeline) run(ctx context.Context) error {
	phases := p.strategy.Phases()
	feedback := ""
	for i := 0; i < len(phases); {
		ph := phases[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		p.log.Debug().Str("phase", ph.Name).Msg("entering phase")

		var ans Answer
		if ph.Ask != nil {
			q, err := ph.Ask(ctx)
			if err != nil {
				return fmt.Errorf("phase %s: %w", ph.Name, err)
			}
			if q != nil {
				ans, err = p.await(ctx, q, feedback)
				if err != nil {
					return err
				}
				if _, back := ans.(Back); back {
					if !ph.GoBack || i == 0 {
						return fmt.Errorf("phase %s cannot go back: %w", ph.Name, model.ErrState)
					}
					feedback = ""
					i--
					continue
				}
			}
		}
		fb, err := ph.Apply(ctx, ans)
		if err != nil {
			return fmt.Errorf("phase %s: %w", ph.Name, err)
		}
		if fb != "" {
			p.log.Debug().Str("phase", ph.Name).Str("feedback", fb).Msg("phase rejected answer")
			feedback = fb
			continue
		}
		feedback = ""
		i++
	}

	p.setState(StateFinalizing)
	result, err := p.strategy.Result()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.result = result
	p.mu.Unlock()
	return nil
}

// await suspends the worker on a one-shot channel until the UI answers or
// the context is cancelled.
func (p *Pipeline) await(ctx context.Context, q Query, feedback string) (Answer, error) {
	ch := make(chan Answer, 1)
	p.mu.Lock()
	p.state = StateAwaitingAnswer
	p.waiting = ch
	p.mu.Unlock()

	p.onQuery(Envelope{Query: q, Feedback: feedback})

	select {
	case ans := <-ch:
		p.setState(StateRunning)
		return ans, nil
	case <-ctx.Done():
		p.mu.Lock()
		p.waiting = nil
		p.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}
