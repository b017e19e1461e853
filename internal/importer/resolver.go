package importer

import (
	"fmt"
	"sort"
	"time"

	"github.com/chatvault/chatvault/internal/logparse"
	"github.com/chatvault/chatvault/internal/model"
)

// ParsedConversation is the normalized in-memory record produced by the
// scan phase, before any identity resolution.
type ParsedConversation struct {
	File        string
	Service     string
	Date        time.Time
	LocalGuess  string // scanner's guess for the local account name
	RemoteGuess string // scanner's guess for the remote account or room name
	Conference  bool
	Speakers    []string // distinct display names, in order of appearance
	Events      []logparse.RawEvent
}

func (c *ParsedConversation) noteSpeaker(name string) {
	if name == "" {
		return
	}
	for _, s := range c.Speakers {
		if s == name {
			return
		}
	}
	c.Speakers = append(c.Speakers, name)
}

// CandidateLocalNames implements the multi-context frequency heuristic:
// group two-party conversations by (service, remote name guess) and tally,
// per speaker name, how many distinct contexts it appears in. A name used
// with two or more different remote parties is probably the archive owner.
// Advisory only; a remote contact with two same-named accounts would
// misfire, so the result is always confirmed by the user.
func CandidateLocalNames(convs []*ParsedConversation) []string {
	type contextKey struct{ service, remote string }
	contexts := make(map[string]map[contextKey]struct{})
	for _, c := range convs {
		if c.Conference {
			continue
		}
		key := contextKey{service: c.Service, remote: c.RemoteGuess}
		for _, name := range c.Speakers {
			if name == c.RemoteGuess {
				continue
			}
			if contexts[name] == nil {
				contexts[name] = make(map[contextKey]struct{})
			}
			contexts[name][key] = struct{}{}
		}
	}
	var out []string
	for name, ctxs := range contexts {
		if len(ctxs) >= 2 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// InteractionLocalNames implements the interaction-degree heuristic for
// formats whose events carry an explicit sender and receiver: a name that
// appears with two or more distinct other names is a candidate local name.
func InteractionLocalNames(convs []*ParsedConversation) []string {
	adjacent := make(map[string]map[string]struct{})
	link := func(a, b string) {
		if a == "" || b == "" || a == b {
			return
		}
		if adjacent[a] == nil {
			adjacent[a] = make(map[string]struct{})
		}
		adjacent[a][b] = struct{}{}
	}
	for _, c := range convs {
		if c.Conference {
			continue
		}
		for _, ev := range c.Events {
			link(ev.Sender, ev.Receiver)
			link(ev.Receiver, ev.Sender)
		}
	}
	var out []string
	for name, peers := range adjacent {
		if len(peers) >= 2 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// RemoteNames returns all observed speaker names not in the local set,
// sorted, for presentation alongside the local-name confirmation.
func RemoteNames(convs []*ParsedConversation, local map[string]bool) []string {
	seen := make(map[string]struct{})
	for _, c := range convs {
		for _, name := range c.Speakers {
			if !local[name] {
				seen[name] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AliasIndex maps (service, display name) pairs to the account a speaker
// with that name resolves to. Trivial self-aliases (a name equal to the
// account's own name) are never indexed.
type AliasIndex struct {
	byKey   map[model.AccountKey]model.FreeAccount
	aliases map[model.AccountKey][]string
}

func NewAliasIndex() *AliasIndex {
	return &AliasIndex{
		byKey:   make(map[model.AccountKey]model.FreeAccount),
		aliases: make(map[model.AccountKey][]string),
	}
}

// Add records name as an alias of account on the given service.
func (x *AliasIndex) Add(service, name string, account model.FreeAccount) {
	if name == "" || name == account.Name {
		return
	}
	key := model.AccountKey{Service: service, Name: name}
	if _, ok := x.byKey[key]; ok {
		return
	}
	x.byKey[key] = account
	x.aliases[account.Key()] = append(x.aliases[account.Key()], name)
}

// Resolve looks a display name up on a service.
func (x *AliasIndex) Resolve(service, name string) (model.FreeAccount, bool) {
	acct, ok := x.byKey[model.AccountKey{Service: service, Name: name}]
	return acct, ok
}

// Aliases returns the distinct alias names recorded for an account, in
// first-seen order.
func (x *AliasIndex) Aliases(account model.FreeAccount) []string {
	return x.aliases[account.Key()]
}

// DisplayName picks a human-friendly name for the contact that will own the
// account: the first alias wins, falling back to the raw account name.
func (x *AliasIndex) DisplayName(account model.FreeAccount) string {
	if names := x.aliases[account.Key()]; len(names) > 0 {
		return names[0]
	}
	return account.Name
}

// ValidateInteractions checks that every observed sender-to-receiver
// interaction has exactly one side in the confirmed local-name set. The
// returned error names the offending file and the two names so the phase
// can be retried with a corrected set, without discarding confirmed state.
func ValidateInteractions(convs []*ParsedConversation, local map[string]bool) error {
	for _, c := range convs {
		if c.Conference {
			continue
		}
		for _, ev := range c.Events {
			if ev.Sender == "" || ev.Receiver == "" {
				continue
			}
			if local[ev.Sender] == local[ev.Receiver] {
				return fmt.Errorf("%w: %s: exactly one of %q and %q must be a local name",
					model.ErrResolution, c.File, ev.Sender, ev.Receiver)
			}
		}
	}
	return nil
}

// ValidateResolutions rejects any pair of aliases that resolve to the same
// account but disagree on local/non-local classification.
func ValidateResolutions(resolutions []model.Alias, local map[string]bool) error {
	classified := make(map[model.AccountKey]struct {
		name  string
		local bool
	})
	for _, alias := range resolutions {
		if alias.Resolution == nil {
			continue
		}
		key := alias.Resolution.Key()
		isLocal := local[alias.Name]
		if prev, ok := classified[key]; ok && prev.local != isLocal {
			return fmt.Errorf("%w: aliases %q and %q resolve to %s but disagree on local classification",
				model.ErrResolution, prev.name, alias.Name, key)
		}
		classified[key] = struct {
			name  string
			local bool
		}{alias.Name, isLocal}
	}
	return nil
}
