package importer

import (
	"context"
	"fmt"

	"github.com/chatvault/chatvault/internal/archive"
	"github.com/chatvault/chatvault/internal/logparse"
	"github.com/chatvault/chatvault/internal/model"
)

// Msn imports MSN-style logs, whose events carry an explicit sender and
// receiver. Accounts are derived rather than confirmed: the local-name
// answer is validated against every observed interaction and the query is
// re-presented with the violation until the set is consistent.
type Msn struct {
	s *importState
}

// NewMsn builds an MSN import strategy reading from source via parser.
func NewMsn(parser logparse.Parser, source string, progress Progress) *Msn {
	return &Msn{s: newImportState(parser, source, progress)}
}

func (m *Msn) Format() string { return "msn" }

func (m *Msn) Phases() []Phase {
	s := m.s
	return []Phase{
		{
			Name: "scan",
			Apply: func(ctx context.Context, _ Answer) (string, error) {
				return "", s.scan(ctx)
			},
		},
		{
			Name: "confirm-local-names",
			Ask: func(ctx context.Context) (Query, error) {
				candidates := InteractionLocalNames(s.convs)
				local := make(map[string]bool, len(candidates))
				for _, n := range candidates {
					local[n] = true
				}
				return ConfirmLocalNamesQuery{
					LocalNames:  candidates,
					RemoteNames: RemoteNames(s.convs, local),
				}, nil
			},
			Apply: func(ctx context.Context, ans Answer) (string, error) {
				a, ok := ans.(LocalNamesAnswer)
				if !ok {
					return "", fmt.Errorf("want LocalNamesAnswer, got %T: %w", ans, model.ErrState)
				}
				s.setLocalNames(a.LocalNames)
				if err := ValidateInteractions(s.convs, s.localNames); err != nil {
					return err.Error(), nil
				}
				if err := deriveParties(s); err != nil {
					return err.Error(), nil
				}
				s.buildPlans()
				return "", nil
			},
		},
		resolveAliasesPhase(s),
	}
}

func (m *Msn) Result() (*archive.Archive, error) { return m.s.finalize() }

// deriveParties fills each conversation's local and remote account names
// from the confirmed local-name set. MSN names double as account names, so
// no separate account confirmation is needed.
func deriveParties(s *importState) error {
	for _, c := range s.convs {
		local, remote := "", c.RemoteGuess
		for _, name := range participants(c) {
			switch {
			case s.localNames[name] && local == "":
				local = name
			case !s.localNames[name] && remote == "":
				remote = name
			}
		}
		if local == "" {
			return fmt.Errorf("%w: %s: no confirmed local name appears in this conversation", model.ErrResolution, c.File)
		}
		if remote == "" {
			return fmt.Errorf("%w: %s: no remote party found", model.ErrResolution, c.File)
		}
		c.LocalGuess = local
		c.RemoteGuess = remote
	}
	return nil
}

func participants(c *ParsedConversation) []string {
	out := append([]string(nil), c.Speakers...)
	seen := make(map[string]struct{}, len(out))
	for _, name := range out {
		seen[name] = struct{}{}
	}
	for _, ev := range c.Events {
		if ev.Kind != logparse.Regular || ev.Receiver == "" {
			continue
		}
		if _, ok := seen[ev.Receiver]; !ok {
			seen[ev.Receiver] = struct{}{}
			out = append(out, ev.Receiver)
		}
	}
	return out
}
