package importer

import (
	"context"
	"fmt"

	"github.com/chatvault/chatvault/internal/archive"
	"github.com/chatvault/chatvault/internal/logparse"
	"github.com/chatvault/chatvault/internal/model"
)

// Gaim imports Gaim/Pidgin-style log trees. The local account name is known
// from the file path, so the strategy asks the user to confirm the derived
// account list explicitly.
type Gaim struct {
	s *importState
}

// NewGaim builds a Gaim import strategy reading from source via parser.
func NewGaim(parser logparse.Parser, source string, progress Progress) *Gaim {
	return &Gaim{s: newImportState(parser, source, progress)}
}

func (g *Gaim) Format() string { return "gaim" }

func (g *Gaim) Phases() []Phase {
	s := g.s
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
				candidates := CandidateLocalNames(s.convs)
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
				return "", nil
			},
		},
		{
			Name:   "confirm-accounts",
			GoBack: true,
			Ask: func(ctx context.Context) (Query, error) {
				s.buildPlans()
				return ConfirmAccountsQuery{Accounts: s.plans}, nil
			},
			Apply: func(ctx context.Context, ans Answer) (string, error) {
				a, ok := ans.(AccountsAnswer)
				if !ok {
					return "", fmt.Errorf("want AccountsAnswer, got %T: %w", ans, model.ErrState)
				}
				s.plans = a.Accounts
				return "", nil
			},
		},
		resolveAliasesPhase(s),
	}
}

func (g *Gaim) Result() (*archive.Archive, error) { return g.s.finalize() }

// resolveAliasesPhase is shared by all strategies: it suspends only when
// unresolved conference speaker names remain, and repeats until every one
// of them is mapped.
func resolveAliasesPhase(s *importState) Phase {
	return Phase{
		Name:   "resolve-aliases",
		GoBack: true,
		Ask: func(ctx context.Context) (Query, error) {
			unresolved := s.unresolvedAliases()
			if len(unresolved) == 0 {
				return nil, nil
			}
			return UnresolvedAliasesQuery{
				Unresolved: unresolved,
				Candidates: s.candidateAccounts(),
			}, nil
		},
		Apply: func(ctx context.Context, ans Answer) (string, error) {
			if ans == nil {
				return "", nil
			}
			a, ok := ans.(AliasResolutionsAnswer)
			if !ok {
				return "", fmt.Errorf("want AliasResolutionsAnswer, got %T: %w", ans, model.ErrState)
			}
			merged := append(append([]model.Alias(nil), s.resolutions...), a.Resolutions...)
			if err := ValidateResolutions(merged, s.localNames); err != nil {
				return err.Error(), nil
			}
			s.resolutions = merged
			if remaining := s.unresolvedAliases(); len(remaining) > 0 {
				return fmt.Sprintf("%d speaker names are still unresolved", len(remaining)), nil
			}
			return "", nil
		},
	}
}
