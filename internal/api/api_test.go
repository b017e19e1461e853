package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatvault/chatvault/internal/archive"
)

func testArchive(t *testing.T) *archive.Archive {
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
	remote, err := a.CreateAccount(alice.ID, "msn", "alice@host")
	require.NoError(t, err)

	started := time.Date(2004, 6, 1, 20, 15, 0, 0, time.UTC)
	conv, err := a.CreateConversation(started, local.ID, remote.ID, false)
	require.NoError(t, err)
	sp, err := a.AddSpeaker(conv.ID, "Alice", remote.ID)
	require.NoError(t, err)
	_, err = a.AppendReply(conv.ID, started, sp.ID, "hello")
	require.NoError(t, err)
	return a
}

func serve(t *testing.T, a *archive.Archive, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	router, _ := NewRouter(a, nil, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestListGroups(t *testing.T) {
	rr := serve(t, testArchive(t), "GET", "/api/archive/groups")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.EqualValues(t, 2, body["count"])
	groups := body["groups"].([]any)
	first := groups[0].(map[string]any)
	assert.Equal(t, "Identities", first["name"])
	assert.Equal(t, true, first["identity"])
}

func TestListContactsAndAccounts(t *testing.T) {
	a := testArchive(t)
	g, ok := a.GroupByName("Friends")
	require.True(t, ok)

	rr := serve(t, a, "GET", "/api/archive/groups/"+itoa(int64(g.ID))+"/contacts")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	contacts := body["contacts"].([]any)
	require.Len(t, contacts, 1)
	alice := contacts[0].(map[string]any)
	assert.Equal(t, "Alice", alice["name"])

	contactID := int64(alice["id"].(float64))
	rr = serve(t, a, "GET", "/api/archive/contacts/"+itoa(contactID)+"/accounts")
	require.Equal(t, http.StatusOK, rr.Code)
	body = decodeBody(t, rr)
	accounts := body["accounts"].([]any)
	require.Len(t, accounts, 1)
	assert.Equal(t, "alice@host", accounts[0].(map[string]any)["name"])
}

func TestListContactsUnknownGroup(t *testing.T) {
	rr := serve(t, testArchive(t), "GET", "/api/archive/groups/9999/contacts")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestQueryConversations(t *testing.T) {
	rr := serve(t, testArchive(t), "GET", "/api/archive/conversations?sort=date&limit=10")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.EqualValues(t, 1, body["count"])
	convs := body["conversations"].([]any)
	first := convs[0].(map[string]any)
	assert.Equal(t, "msn:me@host", first["local"])
	assert.Equal(t, "msn:alice@host", first["remote"])
	assert.EqualValues(t, 1, first["replies"])
}

func TestQueryConversationsBadSort(t *testing.T) {
	rr := serve(t, testArchive(t), "GET", "/api/archive/conversations?sort=bogus")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetConversation(t *testing.T) {
	a := testArchive(t)
	conv := a.Conversations()[0]

	rr := serve(t, a, "GET", "/api/archive/conversations/"+itoa(int64(conv.ID)))
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	replies := body["replies"].([]any)
	require.Len(t, replies, 1)
	reply := replies[0].(map[string]any)
	assert.Equal(t, "Alice", reply["speaker"])
	assert.Equal(t, "hello", reply["text"])
}

func TestGetStats(t *testing.T) {
	rr := serve(t, testArchive(t), "GET", "/api/archive/stats")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.EqualValues(t, 2, body["groups"])
	assert.EqualValues(t, 2, body["contacts"])
	assert.EqualValues(t, 2, body["accounts"])
	assert.EqualValues(t, 1, body["conversations"])
}

func TestSwapReplacesServedArchive(t *testing.T) {
	router, handler := NewRouter(testArchive(t), nil, nil)

	handler.Swap(archive.New())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/api/archive/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.EqualValues(t, 0, body["conversations"])
}

func TestHealth(t *testing.T) {
	rr := serve(t, testArchive(t), "GET", "/api/health")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "healthy", body["status"])
}

type staticReadiness bool

func (s staticReadiness) IsHealthy() bool { return bool(s) }

func TestHealthReportsDegradedService(t *testing.T) {
	router, _ := NewRouter(testArchive(t), nil, staticReadiness(false))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/api/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "unhealthy", decodeBody(t, rr)["status"])
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
