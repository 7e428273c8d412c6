package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/wonderland-chat/internal/core"
	"gwi.com/wonderland-chat/internal/i18n"
	"gwi.com/wonderland-chat/internal/metrics"
	"gwi.com/wonderland-chat/internal/store"
)

type stubGeneral struct {
	reply string
	err   error
}

func (s *stubGeneral) Complete(ctx context.Context, turns []core.ChatTurn) (string, error) {
	return s.reply, s.err
}

type stubDomain struct {
	reply string
	err   error
}

func (s *stubDomain) Ask(ctx context.Context, query string) (string, error) {
	return s.reply, s.err
}

type testServer struct {
	handler http.Handler
	repo    *core.Repository
	chats   *core.ChatService
	general *stubGeneral
	domain  *stubDomain
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	catalog := i18n.New(i18n.English)
	repo, err := core.NewRepository(context.Background(), store.NewMemoryStore(),
		core.WithPlaceholderTitle(catalog.T(i18n.NewConversation)))
	require.NoError(t, err)

	ts := &testServer{
		repo:    repo,
		general: &stubGeneral{reply: "Hi there"},
		domain:  &stubDomain{reply: "Down the rabbit hole."},
	}
	m := metrics.New()
	ts.chats = core.NewChatService(repo, m.Instrument(core.NewExchangeService(ts.general, ts.domain)), catalog)
	list := core.NewConversationList(repo, ts.chats)
	ts.handler = NewRouter(NewAPIHandler(repo, ts.chats, list), m.Handler())
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) create(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/conversations", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv ConversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	return conv.ID
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateAndGetConversation(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)

	rec := ts.do(t, http.MethodGet, "/api/conversations/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var conv ConversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, id, conv.ID)
	assert.Equal(t, "New conversation", conv.Title)
	assert.Equal(t, "idle", conv.Status)

	rec = ts.do(t, http.MethodGet, "/api/conversations/active", "")
	require.Equal(t, http.StatusOK, rec.Code, "a new conversation becomes active")

	rec = ts.do(t, http.MethodGet, "/api/conversations/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessage(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)

	rec := ts.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", `{"content":"Hello","mode":"general"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp PostMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Reply)
	assert.Equal(t, "Hi there", resp.Reply.Content)
	assert.Equal(t, "Hello...", resp.Conversation.Title)
	require.Len(t, resp.Conversation.Messages, 2)

	rec = ts.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", `{"content":"Who is late?","mode":"alicia"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, store.ModeDomain, resp.Reply.Mode, "legacy tags are accepted")
}

func TestSendMessageRejections(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"blank content", "/api/conversations/" + id + "/messages", `{"content":"  "}`, http.StatusBadRequest},
		{"bad mode", "/api/conversations/" + id + "/messages", `{"content":"hi","mode":"oracle"}`, http.StatusBadRequest},
		{"bad json", "/api/conversations/" + id + "/messages", `{"content":`, http.StatusBadRequest},
		{"unknown field", "/api/conversations/" + id + "/messages", `{"text":"hi"}`, http.StatusBadRequest},
		{"missing conversation", "/api/conversations/404/messages", `{"content":"hi"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestSendMessageInFlight(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)

	pending, err := ts.chats.Begin(context.Background(), id, "first", store.ModeGeneral)
	require.NoError(t, err)
	rec := ts.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", `{"content":"second"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	_, err = pending.Resolve(context.Background())
	require.NoError(t, err)
}

func TestSendMessageBackendFailure(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)
	ts.general.err = &core.StatusError{Kind: core.ErrQuotaExceeded, StatusCode: 429}

	rec := ts.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", `{"content":"Hello"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "quota_exceeded", resp.Code)
	assert.Contains(t, resp.Error, "quota")
	require.NotNil(t, resp.Conversation)
	assert.Empty(t, resp.Conversation.Messages)
	assert.Equal(t, "New conversation", resp.Conversation.Title)
	assert.Equal(t, "error", resp.Conversation.Status)
}

func TestRenameConversation(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)

	rec := ts.do(t, http.MethodPatch, "/api/conversations/"+id, `{"title":"Mad tea party"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	conv, _ := ts.repo.Get(id)
	assert.Equal(t, "Mad tea party", conv.Title)

	rec = ts.do(t, http.MethodPatch, "/api/conversations/"+id, `{"title":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPatch, "/api/conversations/"+id, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPatch, "/api/conversations/missing", `{"title":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSelectAndDelete(t *testing.T) {
	ts := newTestServer(t)
	a := ts.create(t)
	b := ts.create(t)

	rec := ts.do(t, http.MethodPut, "/api/conversations/active", `{"id":"`+a+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	active, _ := ts.repo.Active()
	assert.Equal(t, a, active)

	rec = ts.do(t, http.MethodPut, "/api/conversations/active", `{"id":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/conversations/"+b, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/conversations/"+b, "")
	assert.Equal(t, http.StatusNoContent, rec.Code, "delete is idempotent")

	rec = ts.do(t, http.MethodDelete, "/api/conversations/"+a, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/conversations/active", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndSearch(t *testing.T) {
	ts := newTestServer(t)
	a := ts.create(t)
	ts.create(t)
	ts.domain.reply = "The Queen of Hearts."
	rec := ts.do(t, http.MethodPost, "/api/conversations/"+a+"/messages", `{"content":"Who baked the tarts?","mode":"domain"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var all []ConversationSummary
	rec = ts.do(t, http.MethodGet, "/api/conversations/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal(t, a, all[0].ID)
	assert.Equal(t, 2, all[0].MessageCount)

	var hits []ConversationSummary
	rec = ts.do(t, http.MethodGet, "/api/conversations?q=HEARTS", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hits))
	require.Len(t, hits, 1)
	assert.True(t, hits[0].ContainsResults)

	rec = ts.do(t, http.MethodGet, "/api/conversations?q=jabberwock", "")
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)
	ts.do(t, http.MethodPost, "/api/conversations/"+id+"/messages", `{"content":"Hello"}`)

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `wonderland_chat_sends_total{mode="general",outcome="ok"} 1`)
}
