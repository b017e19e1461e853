package importer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chatvault/chatvault/internal/logparse"
	"github.com/chatvault/chatvault/internal/model"
)

// importState is the parse state accumulated across phases. Feedback
// retries rewrite only the rejected answer; everything here survives.
type importState struct {
	parser   logparse.Parser
	source   string
	progress Progress

	convs       []*ParsedConversation
	localNames  map[string]bool
	plans       []AccountPlan
	aliasIndex  *AliasIndex
	resolutions []model.Alias
}

func newImportState(parser logparse.Parser, source string, progress Progress) *importState {
	if progress == nil {
		progress = func(string, int, int) {}
	}
	return &importState{
		parser:     parser,
		source:     source,
		progress:   progress,
		localNames: make(map[string]bool),
		aliasIndex: NewAliasIndex(),
	}
}

// scan reads every located conversation into memory, reporting per-file
// progress. This is CPU/IO heavy but never a suspend point.
func (s *importState) scan(ctx context.Context) error {
	locs, err := s.parser.Scan(s.source)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	s.progress("scanning logs", 0, len(locs))
	for i, loc := range locs {
		if err := ctx.Err(); err != nil {
			return err
		}
		conv, err := s.readConversation(loc)
		if err != nil {
			return err
		}
		s.convs = append(s.convs, conv)
		s.progress("scanning logs", i+1, len(locs))
	}
	return nil
}

func (s *importState) readConversation(loc logparse.ConversationLocation) (*ParsedConversation, error) {
	r, err := s.parser.Read(loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrParse, loc.Path, err)
	}
	defer func() { _ = r.Close() }()

	conv := &ParsedConversation{
		File:        loc.Path,
		Service:     loc.Service,
		Date:        loc.Date,
		LocalGuess:  loc.LocalHint,
		RemoteGuess: loc.RemoteHint,
		Conference:  loc.Conference,
	}
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", model.ErrParse, loc.Path, err)
		}
		if ev.Kind == logparse.Regular {
			conv.noteSpeaker(ev.Sender)
		}
		conv.Events = append(conv.Events, ev)
	}
	return conv, nil
}

func (s *importState) setLocalNames(names []string) {
	s.localNames = make(map[string]bool, len(names))
	for _, n := range names {
		s.localNames[n] = true
	}
}

// buildPlans derives the accounts to create from the conversations' local
// and remote guesses, and indexes every two-party speaker name as an alias
// of the account it resolves to. In a two-party conversation the non-local
// speaker is always the remote account, so there is no ambiguity.
func (s *importState) buildPlans() {
	s.aliasIndex = NewAliasIndex()
	byKey := make(map[model.AccountKey]*AccountPlan)
	order := make([]model.AccountKey, 0)
	plan := func(acct model.FreeAccount, local bool) *AccountPlan {
		if p, ok := byKey[acct.Key()]; ok {
			return p
		}
		p := &AccountPlan{Account: acct, Local: local}
		byKey[acct.Key()] = p
		order = append(order, acct.Key())
		return p
	}

	for _, c := range s.convs {
		if c.LocalGuess == "" || c.RemoteGuess == "" {
			continue
		}
		local := model.FreeAccount{Service: c.Service, Name: c.LocalGuess}
		remote := model.FreeAccount{Service: c.Service, Name: c.RemoteGuess}
		plan(local, true)
		plan(remote, false)
		if c.Conference {
			// Conference speakers resolve through the alias index built
			// from two-party traffic, or through manual resolution.
			continue
		}
		for _, name := range c.Speakers {
			if s.localNames[name] {
				s.aliasIndex.Add(c.Service, name, local)
			} else {
				s.aliasIndex.Add(c.Service, name, remote)
			}
		}
	}

	s.plans = s.plans[:0]
	for _, key := range order {
		p := byKey[key]
		p.Aliases = s.aliasIndex.Aliases(p.Account)
		s.plans = append(s.plans, *p)
	}
}

// planByKey finds a planned account by (service, name).
func (s *importState) planByKey(key model.AccountKey) (AccountPlan, bool) {
	for _, p := range s.plans {
		if p.Account.Key() == key {
			return p, true
		}
	}
	return AccountPlan{}, false
}

// resolveSpeaker maps a conference speaker name to an account: alias index
// first, then a planned account whose canonical name matches, then any
// manual resolution.
func (s *importState) resolveSpeaker(service, name string) (model.FreeAccount, bool) {
	if acct, ok := s.aliasIndex.Resolve(service, name); ok {
		return acct, true
	}
	if p, ok := s.planByKey(model.AccountKey{Service: service, Name: name}); ok {
		return p.Account, true
	}
	for _, alias := range s.resolutions {
		if alias.Service == service && alias.Name == name && alias.Resolution != nil {
			return *alias.Resolution, true
		}
	}
	return model.FreeAccount{}, false
}

// unresolvedAliases collects conference speaker names that no known alias,
// account, or manual resolution covers.
func (s *importState) unresolvedAliases() []model.Alias {
	seen := make(map[model.AccountKey]struct{})
	var out []model.Alias
	for _, c := range s.convs {
		if !c.Conference {
			continue
		}
		for _, name := range c.Speakers {
			if s.localNames[name] {
				continue
			}
			if _, ok := s.resolveSpeaker(c.Service, name); ok {
				continue
			}
			key := model.AccountKey{Service: c.Service, Name: name}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, model.Alias{Service: c.Service, Name: name})
		}
	}
	return out
}

// candidateAccounts lists every planned account for presentation alongside
// an unresolved-aliases query.
func (s *importState) candidateAccounts() []model.FreeAccount {
	out := make([]model.FreeAccount, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p.Account)
	}
	return out
}
