package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawchat/internal/app/cases"
	"lawchat/internal/app/chat"
	"lawchat/internal/app/directory"
	"lawchat/internal/configs"
	"lawchat/internal/pkg/auth/jwt"
	"lawchat/internal/pkg/errs"
	"lawchat/internal/pkg/resp"
)

const testSecret = "handler-test-secret"

type fakeCaseService struct {
	cases map[string]*cases.Case
}

func (f *fakeCaseService) GetCase(_ context.Context, caseID string) (*cases.Case, error) {
	c, ok := f.cases[caseID]
	if !ok {
		return nil, cases.ErrNotFound
	}
	return c, nil
}

type fakeDirectory struct {
	mu         sync.Mutex
	identities map[string]directory.Identity
	calls      map[string]int
}

func (f *fakeDirectory) GetIdentity(_ context.Context, userID string) (directory.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[userID]++
	identity, ok := f.identities[userID]
	if !ok {
		return directory.Identity{}, directory.ErrNotFound
	}
	return identity, nil
}

func (f *fakeDirectory) lookupCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[userID]
}

// fakeHistoryStore backs both the flusher and the HTTP history endpoints.
type fakeHistoryStore struct {
	mu       sync.Mutex
	appended map[string][]chat.Message
}

func newFakeHistoryStore() *fakeHistoryStore {
	return &fakeHistoryStore{appended: make(map[string][]chat.Message)}
}

func (s *fakeHistoryStore) AppendMessages(_ context.Context, caseID string, messages []chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appended[caseID] = append(s.appended[caseID], messages...)
	return nil
}

func (s *fakeHistoryStore) CaseHistory(_ context.Context, caseID string) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]chat.Message, len(s.appended[caseID]))
	copy(history, s.appended[caseID])
	return history, nil
}

func (s *fakeHistoryStore) DeleteCaseMessages(_ context.Context, caseID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := int64(len(s.appended[caseID]))
	delete(s.appended, caseID)
	return deleted, nil
}

type testEnv struct {
	srv       *httptest.Server
	manager   *chat.Manager
	flusher   *chat.Flusher
	store     *fakeHistoryStore
	directory *fakeDirectory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	caseService := &fakeCaseService{
		cases: map[string]*cases.Case{
			"case-1": {ID: "case-1", Title: "Estate dispute", ClientID: "client-1", AssignedLawyerID: "lawyer-1"},
			"case-2": {ID: "case-2", Title: "Contract review", ClientID: "client-2"},
		},
	}

	dir := &fakeDirectory{
		identities: map[string]directory.Identity{
			"client-1": {UserID: "client-1", Username: "Carol", AvatarURL: "https://cdn.example/carol.png"},
			"client-2": {UserID: "client-2", Username: "Nina"},
			"lawyer-1": {UserID: "lawyer-1", Username: "Lenny"},
			"admin-1":  {UserID: "admin-1", Username: "Ada"},
		},
		calls: make(map[string]int),
	}

	store := newFakeHistoryStore()

	// The flusher is never ticking here; tests drain it explicitly via Flush.
	flusher := chat.NewFlusher(store, time.Hour, 1)
	manager := chat.NewManager(caseService, chat.NewIdentityCache(dir), flusher)

	cfg := &configs.AppConfig{
		Environment:     "development",
		Port:            9000,
		AllowedOrigins:  []string{},
		JWTSecret:       testSecret,
		FlushInterval:   time.Hour,
		FlushMaxRetries: 1,
	}

	srv := httptest.NewServer(Router(&AppDeps{
		Manager: manager,
		Config:  cfg,
		Cases:   caseService,
		Store:   store,
	}))

	t.Cleanup(func() {
		srv.Close()
		manager.Shutdown()
	})

	return &testEnv{
		srv:       srv,
		manager:   manager,
		flusher:   flusher,
		store:     store,
		directory: dir,
	}
}

func signToken(t *testing.T, secret, userID, username, role string, duration time.Duration) string {
	t.Helper()

	token, err := jwt.GenerateToken(&jwt.Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
	}, secret, duration)
	require.NoError(t, err)
	return token
}

func (env *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL(token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (env *testEnv) wsURL(token string) string {
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()

	frame, err := chat.NewEnvelope(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readEvent(t *testing.T, conn *websocket.Conn) chat.Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var envelope chat.Envelope
	require.NoError(t, json.Unmarshal(frame, &envelope))
	return envelope
}

func readEventOfType(t *testing.T, conn *websocket.Conn, event string) chat.Envelope {
	t.Helper()

	envelope := readEvent(t, conn)
	require.Equal(t, event, envelope.Event)
	return envelope
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))

	_, frame, err := conn.ReadMessage()
	require.Error(t, err, "expected no frame, got: %s", frame)
}

func joinCase(t *testing.T, conn *websocket.Conn, caseID string) chat.RoomJoinedPayload {
	t.Helper()

	sendEvent(t, conn, chat.EventJoinRoom, chat.JoinRoomPayload{CaseID: caseID})
	envelope := readEventOfType(t, conn, chat.EventRoomJoined)

	var payload chat.RoomJoinedPayload
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	return payload
}

func TestWebSocketGateRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)

	_, res, err := websocket.DefaultDialer.Dial(env.wsURL(""), nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestWebSocketGateRejectsInvalidToken(t *testing.T) {
	env := newTestEnv(t)

	forged := signToken(t, "some-other-secret", "client-1", "Carol", directory.RoleClient, time.Hour)
	_, res, err := websocket.DefaultDialer.Dial(env.wsURL(forged), nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	expired := signToken(t, testSecret, "client-1", "Carol", directory.RoleClient, -time.Minute)
	_, res, err = websocket.DefaultDialer.Dial(env.wsURL(expired), nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestJoinBroadcastAndPersist(t *testing.T) {
	env := newTestEnv(t)

	owner := env.dial(t, signToken(t, testSecret, "client-1", "Carol", directory.RoleClient, time.Hour))
	lawyer := env.dial(t, signToken(t, testSecret, "lawyer-1", "Lenny", directory.RoleLawyer, time.Hour))

	joined := joinCase(t, owner, "case-1")
	assert.Equal(t, "Estate dispute", joined.CaseTitle)
	joinCase(t, lawyer, "case-1")

	sendEvent(t, owner, chat.EventChatMessage, chat.ChatMessagePayload{
		CaseID:  "case-1",
		Message: "Good morning",
		Kind:    chat.KindText,
	})

	// Both members receive the enriched broadcast, the sender included.
	for _, conn := range []*websocket.Conn{owner, lawyer} {
		envelope := readEventOfType(t, conn, chat.EventMessage)

		var msg chat.Message
		require.NoError(t, json.Unmarshal(envelope.Payload, &msg))
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, "case-1", msg.CaseID)
		assert.Equal(t, "client-1", msg.SenderID)
		assert.Equal(t, "Carol", msg.SenderName)
		assert.Equal(t, chat.KindText, msg.Kind)
		assert.Equal(t, "Good morning", msg.Body)
		assert.False(t, msg.SentAt.IsZero())
	}

	sendEvent(t, owner, chat.EventChatMessage, chat.ChatMessagePayload{
		CaseID:  "case-1",
		Message: "One more thing",
		Kind:    chat.KindText,
	})
	readEventOfType(t, owner, chat.EventMessage)
	readEventOfType(t, lawyer, chat.EventMessage)

	// The second message from the same sender is served from the identity cache.
	assert.Equal(t, 1, env.directory.lookupCount("client-1"))

	// Nothing is durable until the scheduler flushes.
	history, err := env.store.CaseHistory(context.Background(), "case-1")
	require.NoError(t, err)
	assert.Empty(t, history)

	env.flusher.Flush(context.Background())

	history, err = env.store.CaseHistory(context.Background(), "case-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Good morning", history[0].Body)
	assert.Equal(t, "One more thing", history[1].Body)
}

func TestUnauthorizedUserCannotJoinOrSend(t *testing.T) {
	env := newTestEnv(t)

	outsider := env.dial(t, signToken(t, testSecret, "client-2", "Nina", directory.RoleClient, time.Hour))

	sendEvent(t, outsider, chat.EventJoinRoom, chat.JoinRoomPayload{CaseID: "case-1"})
	envelope := readEventOfType(t, outsider, chat.EventError)

	var errPayload chat.ErrorPayload
	require.NoError(t, json.Unmarshal(envelope.Payload, &errPayload))
	assert.Equal(t, errs.ErrCaseAccessDenied, errPayload.Code)

	// The send path applies the same rule even without a prior join.
	sendEvent(t, outsider, chat.EventChatMessage, chat.ChatMessagePayload{
		CaseID:  "case-1",
		Message: "let me in",
		Kind:    chat.KindText,
	})
	envelope = readEventOfType(t, outsider, chat.EventError)
	require.NoError(t, json.Unmarshal(envelope.Payload, &errPayload))
	assert.Equal(t, errs.ErrCaseAccessDenied, errPayload.Code)

	sendEvent(t, outsider, chat.EventJoinRoom, chat.JoinRoomPayload{CaseID: "no-such-case"})
	envelope = readEventOfType(t, outsider, chat.EventError)
	require.NoError(t, json.Unmarshal(envelope.Payload, &errPayload))
	assert.Equal(t, errs.ErrCaseNotFound, errPayload.Code)

	// Rejected messages never reach the persistence buffer.
	env.flusher.Flush(context.Background())
	history, err := env.store.CaseHistory(context.Background(), "case-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMessageValidation(t *testing.T) {
	env := newTestEnv(t)

	owner := env.dial(t, signToken(t, testSecret, "client-1", "Carol", directory.RoleClient, time.Hour))
	joinCase(t, owner, "case-1")

	var errPayload chat.ErrorPayload

	sendEvent(t, owner, chat.EventChatMessage, chat.ChatMessagePayload{
		CaseID:  "case-1",
		Message: "hello",
		Kind:    chat.Kind("carrier-pigeon"),
	})
	envelope := readEventOfType(t, owner, chat.EventError)
	require.NoError(t, json.Unmarshal(envelope.Payload, &errPayload))
	assert.Equal(t, errs.ErrMessageKindInvalid, errPayload.Code)

	sendEvent(t, owner, chat.EventChatMessage, chat.ChatMessagePayload{
		CaseID:  "case-1",
		Message: strings.Repeat("a", chat.MaxBodyBytes+1),
		Kind:    chat.KindText,
	})
	envelope = readEventOfType(t, owner, chat.EventError)
	require.NoError(t, json.Unmarshal(envelope.Payload, &errPayload))
	assert.Equal(t, errs.ErrMessageContentTooLong, errPayload.Code)

	env.flusher.Flush(context.Background())
	history, err := env.store.CaseHistory(context.Background(), "case-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	env := newTestEnv(t)

	owner := env.dial(t, signToken(t, testSecret, "client-1", "Carol", directory.RoleClient, time.Hour))
	lawyer := env.dial(t, signToken(t, testSecret, "lawyer-1", "Lenny", directory.RoleLawyer, time.Hour))

	joinCase(t, owner, "case-1")
	joinCase(t, lawyer, "case-1")

	sendEvent(t, lawyer, chat.EventLeaveRoom, chat.LeaveRoomPayload{CaseID: "case-1"})

	// Leaving produces no confirmation; give the room loop a moment to process
	// the unregister before the next broadcast.
	time.Sleep(200 * time.Millisecond)

	sendEvent(t, owner, chat.EventChatMessage, chat.ChatMessagePayload{
		CaseID:  "case-1",
		Message: "still here?",
		Kind:    chat.KindText,
	})

	readEventOfType(t, owner, chat.EventMessage)
	expectSilence(t, lawyer)
}

func TestEvictedConnectionStopsReceiving(t *testing.T) {
	env := newTestEnv(t)

	owner := env.dial(t, signToken(t, testSecret, "client-1", "Carol", directory.RoleClient, time.Hour))
	lawyer := env.dial(t, signToken(t, testSecret, "lawyer-1", "Lenny", directory.RoleLawyer, time.Hour))

	joinCase(t, owner, "case-1")
	joinCase(t, lawyer, "case-1")

	room := env.manager.GetRoom("case-1")
	require.NotNil(t, room)
	require.Len(t, room.Members(), 2)

	// Evict every member, the way a case-unassignment sweep would.
	for _, connID := range room.Members() {
		room.Evict(connID)
	}
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, room.Members())

	// The evicted connections stay open; they simply receive no further fan-out.
	sendEvent(t, owner, chat.EventChatMessage, chat.ChatMessagePayload{
		CaseID:  "case-1",
		Message: "anyone left?",
		Kind:    chat.KindText,
	})

	expectSilence(t, owner)
	expectSilence(t, lawyer)

	// The message was still accepted for persistence.
	env.flusher.Flush(context.Background())
	history, err := env.store.CaseHistory(context.Background(), "case-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "anyone left?", history[0].Body)
}

func apiRequest(t *testing.T, env *testEnv, method, path, token string) (*http.Response, resp.JSONResponse) {
	t.Helper()

	req, err := http.NewRequest(method, env.srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var body resp.JSONResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return res, body
}

func TestCaseHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seed := []chat.Message{
		chat.NewMessage("case-1", "client-1", "Carol", "", chat.KindText, "first"),
		chat.NewMessage("case-1", "lawyer-1", "Lenny", "", chat.KindText, "second"),
	}
	require.NoError(t, env.store.AppendMessages(ctx, "case-1", seed))

	ownerToken := signToken(t, testSecret, "client-1", "Carol", directory.RoleClient, time.Hour)
	outsiderToken := signToken(t, testSecret, "client-2", "Nina", directory.RoleClient, time.Hour)
	adminToken := signToken(t, testSecret, "admin-1", "Ada", directory.RoleAdmin, time.Hour)

	res, _ := apiRequest(t, env, http.MethodGet, "/api/chat/cases/case-1/messages", "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, body := apiRequest(t, env, http.MethodGet, "/api/chat/cases/case-1/messages", outsiderToken)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, errs.ErrCaseAccessDenied, body.Code)

	res, body = apiRequest(t, env, http.MethodGet, "/api/chat/cases/no-such-case/messages", ownerToken)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, errs.ErrCaseNotFound, body.Code)

	res, body = apiRequest(t, env, http.MethodGet, "/api/chat/cases/case-1/messages", ownerToken)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, 0, body.Code)

	data, ok := body.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "case-1", data["caseId"])
	messages, ok := data["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)

	res, body = apiRequest(t, env, http.MethodDelete, "/api/chat/cases/case-1/messages", adminToken)
	require.Equal(t, http.StatusOK, res.StatusCode)
	data, ok = body.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), data["deletedCount"])

	res, body = apiRequest(t, env, http.MethodGet, "/api/chat/cases/case-1/messages", ownerToken)
	require.Equal(t, http.StatusOK, res.StatusCode)
	data, ok = body.Data.(map[string]any)
	require.True(t, ok)
	messages, ok = data["messages"].([]any)
	require.True(t, ok)
	assert.Empty(t, messages)
}
