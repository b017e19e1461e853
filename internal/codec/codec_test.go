package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatvault/chatvault/internal/archive"
	"github.com/chatvault/chatvault/internal/model"
)

func TestFormatDate(t *testing.T) {
	d := time.Date(2004, 6, 1, 20, 30, 15, 123_400_000, time.UTC)
	assert.Equal(t, "2004-06-01 20:30:15:1234", formatDate(d))

	// Non-UTC input is rendered in UTC.
	cet := time.FixedZone("CET", 3600)
	assert.Equal(t, "2004-06-01 19:30:15:0000", formatDate(time.Date(2004, 6, 1, 20, 30, 15, 0, cet)))
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("2004-06-01 20:30:15:1234")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2004, 6, 1, 20, 30, 15, 123_400_000, time.UTC), got)

	for _, bad := range []string{
		"",
		"garbage",
		"2004-06-01 20:30:15",
		"2004-06-01 20:30:15:zzzz",
		"2004-13-01 20:30:15:0000",
	} {
		_, err := parseDate(bad)
		assert.ErrorIs(t, err, model.ErrParse, "input %q", bad)
	}
}

func TestParseAccountID(t *testing.T) {
	key, err := parseAccountID("msn:alice@host")
	require.NoError(t, err)
	assert.Equal(t, model.AccountKey{Service: "msn", Name: "alice@host"}, key)

	// Only the first separator splits; the name may carry colons.
	key, err = parseAccountID("irc:nick:extra")
	require.NoError(t, err)
	assert.Equal(t, "nick:extra", key.Name)

	for _, bad := range []string{"", "noseparator", ":name", "service:"} {
		_, err := parseAccountID(bad)
		assert.ErrorIs(t, err, model.ErrParse, "input %q", bad)
	}
}

func buildArchive(t *testing.T) *archive.Archive {
	t.Helper()
	a := archive.New()
	me, err := a.CreateContact(a.IdentitiesGroupID(), "Me")
	require.NoError(t, err)
	local, err := a.CreateAccount(me.ID, "msn", "me@host")
	require.NoError(t, err)

	g, err := a.CreateGroup("Friends")
	require.NoError(t, err)
	alice, err := a.CreateContact(g.ID, "Alice")
	require.NoError(t, err)
	acc, err := a.CreateAccount(alice.ID, "msn", "alice@host")
	require.NoError(t, err)

	start := time.Date(2004, 6, 1, 20, 0, 0, 123_400_000, time.UTC)
	conv, err := a.CreateConversation(start, local.ID, acc.ID, false)
	require.NoError(t, err)
	sp, err := a.AddSpeaker(conv.ID, "Alice D", acc.ID)
	require.NoError(t, err)
	_, err = a.AppendReply(conv.ID, start, sp.ID, "hello")
	require.NoError(t, err)
	_, err = a.AppendReply(conv.ID, start.Add(time.Minute), 0, "Alice signed off")
	require.NoError(t, err)
	return a
}

func TestRoundTrip(t *testing.T) {
	src := buildArchive(t)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, src))
	got, err := Decode(&buf)
	require.NoError(t, err)

	me, ok := got.ContactByName("Me")
	require.True(t, ok)
	assert.True(t, got.IsIdentityContact(me.ID))
	_, ok = got.GroupByName("Friends")
	assert.True(t, ok)
	_, ok = got.AccountByKey(model.AccountKey{Service: "msn", Name: "alice@host"})
	assert.True(t, ok)

	require.Equal(t, 1, got.ConversationCount())
	conv := got.Conversations()[0]
	assert.Equal(t, time.Date(2004, 6, 1, 20, 0, 0, 123_400_000, time.UTC), conv.DateStarted)
	require.Len(t, conv.Speakers, 1)
	assert.Equal(t, "Alice D", conv.Speakers[0].Name)
	require.Len(t, conv.Replies, 2)
	assert.Equal(t, conv.Speakers[0].ID, conv.Replies[0].SpeakerID)
	assert.Equal(t, "hello", conv.Replies[0].Text)
	// The system line survives without a speaker.
	assert.Zero(t, conv.Replies[1].SpeakerID)
}

func TestEncodeEmptyArchive(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, archive.New()))

	// Empty collections encode as arrays, not null.
	s := buf.String()
	assert.Contains(t, s, `"identities": []`)
	assert.Contains(t, s, `"groups": []`)
	assert.Contains(t, s, `"conversations": []`)

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ConversationCount())
}

func TestDecodeNotJSON(t *testing.T) {
	_, err := Decode(strings.NewReader("not json"))
	assert.ErrorIs(t, err, model.ErrParse)
}

func TestDecodeUnknownAccount(t *testing.T) {
	doc := `{
	  "identities": [{"name": "Me", "accounts": [{"id": "msn:me@host"}]}],
	  "groups": [],
	  "conversations": [{
	    "date": "2004-06-01 20:00:00:0000",
	    "local": "msn:me@host",
	    "remote": "msn:ghost@host",
	    "conference": false,
	    "speakers": [],
	    "replies": []
	  }]
	}`
	_, err := Decode(strings.NewReader(doc))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDecodeSpeakerIndexOutOfRange(t *testing.T) {
	doc := `{
	  "identities": [{"name": "Me", "accounts": [{"id": "msn:me@host"}]}],
	  "groups": [{"name": "Friends", "contacts": [
	    {"name": "Alice", "accounts": [{"id": "msn:alice@host"}]}
	  ]}],
	  "conversations": [{
	    "date": "2004-06-01 20:00:00:0000",
	    "local": "msn:me@host",
	    "remote": "msn:alice@host",
	    "conference": false,
	    "speakers": [{"name": "Alice D", "account": "msn:alice@host"}],
	    "replies": [{"date": "2004-06-01 20:00:00:0000", "speaker": 3, "text": "hi"}]
	  }]
	}`
	_, err := Decode(strings.NewReader(doc))
	assert.ErrorIs(t, err, model.ErrParse)
}
