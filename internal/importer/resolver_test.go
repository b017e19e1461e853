package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatvault/chatvault/internal/logparse"
	"github.com/chatvault/chatvault/internal/model"
)

func twoParty(service, local, remote string, speakers ...string) *ParsedConversation {
	c := &ParsedConversation{
		File:        "log/" + remote + ".txt",
		Service:     service,
		LocalGuess:  local,
		RemoteGuess: remote,
	}
	for _, s := range speakers {
		c.noteSpeaker(s)
	}
	return c
}

func TestCandidateLocalNames(t *testing.T) {
	convs := []*ParsedConversation{
		twoParty("msn", "me", "alice", "Me Display", "Alice D"),
		twoParty("msn", "me", "bob", "Me Display", "BobbyD"),
		twoParty("msn", "me", "carol", "Carol C"),
		// A name repeated in one and the same context, however often, is
		// not a local-name candidate.
		twoParty("msn", "me", "dave", "OtherGuy"),
		twoParty("msn", "me", "dave", "OtherGuy"),
		twoParty("msn", "me", "dave", "OtherGuy"),
	}
	assert.Equal(t, []string{"Me Display"}, CandidateLocalNames(convs))
}

func TestCandidateLocalNamesIgnoresConferences(t *testing.T) {
	conf := twoParty("msn", "me", "room", "Chatty")
	conf.Conference = true
	other := twoParty("msn", "me", "alice", "Chatty")
	assert.Empty(t, CandidateLocalNames([]*ParsedConversation{conf, other}))
}

func TestInteractionLocalNames(t *testing.T) {
	convs := []*ParsedConversation{
		{Service: "msn", Events: []logparse.RawEvent{
			{Kind: logparse.Regular, Sender: "Me", Receiver: "Alice"},
			{Kind: logparse.Regular, Sender: "Alice", Receiver: "Me"},
		}},
		{Service: "msn", Events: []logparse.RawEvent{
			{Kind: logparse.Regular, Sender: "Me", Receiver: "Bob"},
		}},
	}
	assert.Equal(t, []string{"Me"}, InteractionLocalNames(convs))
}

func TestRemoteNames(t *testing.T) {
	convs := []*ParsedConversation{
		twoParty("msn", "me", "alice", "Me Display", "Alice D"),
		twoParty("msn", "me", "bob", "BobbyD"),
	}
	got := RemoteNames(convs, map[string]bool{"Me Display": true})
	assert.Equal(t, []string{"Alice D", "BobbyD"}, got)
}

func TestAliasIndex(t *testing.T) {
	x := NewAliasIndex()
	alice := model.FreeAccount{Service: "msn", Name: "alice@host"}

	x.Add("msn", "Alice D", alice)
	x.Add("msn", "alice@host", alice) // self-alias, ignored
	x.Add("msn", "Alice D", model.FreeAccount{Service: "msn", Name: "other"})

	got, ok := x.Resolve("msn", "Alice D")
	require.True(t, ok)
	assert.Equal(t, alice, got) // first registration wins

	assert.Equal(t, []string{"Alice D"}, x.Aliases(alice))
	assert.Equal(t, "Alice D", x.DisplayName(alice))
	assert.Equal(t, "alice@host", x.DisplayName(model.FreeAccount{Service: "msn", Name: "alice@host2"}))

	_, ok = x.Resolve("irc", "Alice D")
	assert.False(t, ok)
}

func TestValidateInteractions(t *testing.T) {
	convs := []*ParsedConversation{
		{File: "a.xml", Service: "msn", Events: []logparse.RawEvent{
			{Kind: logparse.Regular, Sender: "Me", Receiver: "Alice"},
		}},
	}

	assert.NoError(t, ValidateInteractions(convs, map[string]bool{"Me": true}))

	err := ValidateInteractions(convs, map[string]bool{"Me": true, "Alice": true})
	require.ErrorIs(t, err, model.ErrResolution)
	assert.Contains(t, err.Error(), "a.xml")
	assert.Contains(t, err.Error(), "Alice")

	err = ValidateInteractions(convs, map[string]bool{})
	assert.ErrorIs(t, err, model.ErrResolution)
}

func TestValidateResolutions(t *testing.T) {
	alice := model.FreeAccount{Service: "msn", Name: "alice@host"}
	ok := []model.Alias{
		{Service: "msn", Name: "Alice D", Resolution: &alice},
		{Service: "msn", Name: "Ali", Resolution: &alice},
	}
	assert.NoError(t, ValidateResolutions(ok, map[string]bool{}))

	bad := []model.Alias{
		{Service: "msn", Name: "Alice D", Resolution: &alice},
		{Service: "msn", Name: "Me Too", Resolution: &alice},
	}
	err := ValidateResolutions(bad, map[string]bool{"Me Too": true})
	assert.ErrorIs(t, err, model.ErrResolution)
}
