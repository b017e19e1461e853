package importer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatvault/chatvault/internal/archive"
	"github.com/chatvault/chatvault/internal/logparse"
	"github.com/chatvault/chatvault/internal/model"
)

var day = time.Date(2004, 6, 1, 0, 0, 0, 0, time.UTC)

func regular(min int, sender, text string) logparse.RawEvent {
	return logparse.RawEvent{Date: day.Add(time.Duration(min) * time.Minute), Kind: logparse.Regular, Sender: sender, Text: text}
}

// gaimParser builds a memory parser mimicking a small Gaim log tree: two
// two-party conversations and one conference with a stranger in it.
func gaimParser() *logparse.MemoryParser {
	return &logparse.MemoryParser{Conversations: []logparse.MemoryConversation{
		{
			Location: logparse.ConversationLocation{
				Path: "msn/me/alice/2004-06-01.100000.txt", Service: "msn",
				LocalHint: "me", RemoteHint: "alice", Date: day.Add(10 * time.Hour),
			},
			Events: []logparse.RawEvent{
				regular(0, "Me Display", "hi"),
				regular(1, "Alice D", "yo"),
			},
		},
		{
			Location: logparse.ConversationLocation{
				Path: "msn/me/bob/2004-06-01.110000.txt", Service: "msn",
				LocalHint: "me", RemoteHint: "bob", Date: day.Add(11 * time.Hour),
			},
			Events: []logparse.RawEvent{
				regular(0, "Me Display", "hey"),
				regular(1, "BobbyD", "hello"),
				regular(2, "BobbyD", "you there?"),
			},
		},
		{
			Location: logparse.ConversationLocation{
				Path: "msn/me/room1.chat/2004-06-01.120000.txt", Service: "msn",
				LocalHint: "me", RemoteHint: "room1", Date: day.Add(12 * time.Hour),
				Conference: true,
			},
			Events: []logparse.RawEvent{
				regular(0, "Me Display", "welcome"),
				regular(1, "Alice D", "hi all"),
				regular(2, "Stranger", "who am I"),
			},
		},
	}}
}

// harness runs a pipeline on a background goroutine and exposes its query
// envelopes.
type harness struct {
	pipe    *Pipeline
	queries chan Envelope
	done    chan error
	cancel  context.CancelFunc
}

func newHarness(t *testing.T, strategy Strategy) *harness {
	t.Helper()
	h := &harness{
		queries: make(chan Envelope, 1),
		done:    make(chan error, 1),
	}
	h.pipe = New(zerolog.Nop(), strategy, func(env Envelope) { h.queries <- env })
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)
	go func() { h.done <- h.pipe.Run(ctx) }()
	return h
}

func (h *harness) next(t *testing.T) Envelope {
	t.Helper()
	select {
	case env := <-h.queries:
		return env
	case err := <-h.done:
		t.Fatalf("pipeline finished instead of suspending: %v", err)
		return Envelope{}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for query")
		return Envelope{}
	}
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pipeline")
		return nil
	}
}

func TestGaimImportEndToEnd(t *testing.T) {
	h := newHarness(t, NewGaim(gaimParser(), "logs", nil))

	env := h.next(t)
	names, ok := env.Query.(ConfirmLocalNamesQuery)
	require.True(t, ok, "got %T", env.Query)
	assert.Empty(t, env.Feedback)
	assert.Equal(t, []string{"Me Display"}, names.LocalNames)
	assert.Contains(t, names.RemoteNames, "Alice D")
	assert.Equal(t, StateAwaitingAnswer, h.pipe.State())
	require.NoError(t, h.pipe.Answer(LocalNamesAnswer{LocalNames: names.LocalNames}))

	env = h.next(t)
	accounts, ok := env.Query.(ConfirmAccountsQuery)
	require.True(t, ok, "got %T", env.Query)
	keys := map[string]bool{}
	for _, p := range accounts.Accounts {
		keys[p.Account.Key().String()] = p.Local
	}
	assert.Equal(t, map[string]bool{
		"msn:me":    true,
		"msn:alice": false,
		"msn:bob":   false,
		"msn:room1": false,
	}, keys)
	require.NoError(t, h.pipe.Answer(AccountsAnswer{Accounts: accounts.Accounts}))

	env = h.next(t)
	aliases, ok := env.Query.(UnresolvedAliasesQuery)
	require.True(t, ok, "got %T", env.Query)
	require.Len(t, aliases.Unresolved, 1)
	assert.Equal(t, "Stranger", aliases.Unresolved[0].Name)
	assert.NotEmpty(t, aliases.Candidates)

	resolved := aliases.Unresolved[0]
	resolved.Resolution = &model.FreeAccount{Service: "msn", Name: "alice"}
	require.NoError(t, h.pipe.Answer(AliasResolutionsAnswer{Resolutions: []model.Alias{resolved}}))

	require.NoError(t, h.wait(t))
	assert.Equal(t, StateCompleted, h.pipe.State())

	a, err := h.pipe.Result()
	require.NoError(t, err)
	assertGaimArchive(t, a)
}

func assertGaimArchive(t *testing.T, a *archive.Archive) {
	t.Helper()
	assert.Equal(t, 3, a.ConversationCount())

	me, ok := a.ContactByName("Me Display")
	require.True(t, ok)
	assert.True(t, a.IsIdentityContact(me.ID))

	imported, ok := a.GroupByName(ImportedGroupName)
	require.True(t, ok)
	names := map[string]bool{}
	for _, c := range a.ContactsIn(imported.ID) {
		names[c.Name] = true
	}
	assert.True(t, names["Alice D"])
	assert.True(t, names["BobbyD"])
	assert.True(t, names["room1"])

	// The conference speakers all carry resolved accounts; the stranger's
	// manual resolution points at Alice's account.
	aliceAcc, ok := a.AccountByKey(model.AccountKey{Service: "msn", Name: "alice"})
	require.True(t, ok)
	var conference model.Conversation
	for _, c := range a.Conversations() {
		if c.Conference {
			conference = c
		}
	}
	require.NotZero(t, conference.ID)
	byName := map[string]model.ID{}
	for _, s := range conference.Speakers {
		byName[s.Name] = s.AccountID
	}
	assert.Equal(t, aliceAcc.ID, byName["Alice D"])
	assert.Equal(t, aliceAcc.ID, byName["Stranger"])
	assert.Len(t, conference.Replies, 3)
}

func TestGaimGoBackRevisitsLocalNames(t *testing.T) {
	h := newHarness(t, NewGaim(gaimParser(), "logs", nil))

	env := h.next(t)
	names := env.Query.(ConfirmLocalNamesQuery)
	require.NoError(t, h.pipe.Answer(LocalNamesAnswer{LocalNames: names.LocalNames}))

	env = h.next(t)
	_, ok := env.Query.(ConfirmAccountsQuery)
	require.True(t, ok)
	require.NoError(t, h.pipe.Answer(Back{}))

	env = h.next(t)
	_, ok = env.Query.(ConfirmLocalNamesQuery)
	assert.True(t, ok, "expected to be back on the local-names query, got %T", env.Query)
	h.cancel()
	_ = h.wait(t)
}

func TestAliasFeedbackRetryKeepsState(t *testing.T) {
	h := newHarness(t, NewGaim(gaimParser(), "logs", nil))

	env := h.next(t)
	names := env.Query.(ConfirmLocalNamesQuery)
	require.NoError(t, h.pipe.Answer(LocalNamesAnswer{LocalNames: names.LocalNames}))
	env = h.next(t)
	accounts := env.Query.(ConfirmAccountsQuery)
	require.NoError(t, h.pipe.Answer(AccountsAnswer{Accounts: accounts.Accounts}))

	env = h.next(t)
	_, ok := env.Query.(UnresolvedAliasesQuery)
	require.True(t, ok)
	// Answer with no resolutions: the phase repeats with feedback instead of
	// failing, and the accumulated parse state survives.
	require.NoError(t, h.pipe.Answer(AliasResolutionsAnswer{}))

	env = h.next(t)
	retry, ok := env.Query.(UnresolvedAliasesQuery)
	require.True(t, ok)
	assert.NotEmpty(t, env.Feedback)
	require.Len(t, retry.Unresolved, 1)

	resolved := retry.Unresolved[0]
	resolved.Resolution = &model.FreeAccount{Service: "msn", Name: "stranger@host"}
	require.NoError(t, h.pipe.Answer(AliasResolutionsAnswer{Resolutions: []model.Alias{resolved}}))

	require.NoError(t, h.wait(t))
	a, err := h.pipe.Result()
	require.NoError(t, err)

	// The manual resolution minted a brand-new account.
	acc, ok := a.AccountByKey(model.AccountKey{Service: "msn", Name: "stranger@host"})
	require.True(t, ok)
	assert.False(t, a.IsIdentityAccount(acc.ID))
}

func TestPipelineCancellation(t *testing.T) {
	h := newHarness(t, NewGaim(gaimParser(), "logs", nil))

	h.next(t) // suspended on the first query
	h.cancel()

	err := h.wait(t)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, h.pipe.State())

	_, err = h.pipe.Result()
	assert.ErrorIs(t, err, model.ErrState)
}

func TestAnswerWithoutSuspension(t *testing.T) {
	pipe := New(zerolog.Nop(), NewGaim(gaimParser(), "logs", nil), nil)
	err := pipe.Answer(LocalNamesAnswer{})
	assert.ErrorIs(t, err, model.ErrState)
	assert.Equal(t, StateIdle, pipe.State())
}

func TestResultBeforeCompletion(t *testing.T) {
	h := newHarness(t, NewGaim(gaimParser(), "logs", nil))
	h.next(t)
	_, err := h.pipe.Result()
	assert.ErrorIs(t, err, model.ErrState)
	h.cancel()
	_ = h.wait(t)
}

func TestProgressReported(t *testing.T) {
	var scans int
	progress := func(comment string, completed, total int) {
		if comment == "scanning logs" {
			scans++
		}
	}
	h := newHarness(t, NewGaim(gaimParser(), "logs", progress))
	env := h.next(t)
	assert.Equal(t, 4, scans) // initial report plus one per file
	names := env.Query.(ConfirmLocalNamesQuery)
	require.NoError(t, h.pipe.Answer(LocalNamesAnswer{LocalNames: names.LocalNames}))
	h.cancel()
	_ = h.wait(t)
}
