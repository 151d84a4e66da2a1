package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcdev12/livequiz/go/internal/catalog"
	"github.com/mcdev12/livequiz/go/internal/match"
	"github.com/mcdev12/livequiz/go/internal/models"
)

type fakeCatalog struct {
	games map[string]models.Game
	err   error
}

func (c fakeCatalog) GetGameByID(_ context.Context, id string) (*models.Game, error) {
	if c.err != nil {
		return nil, c.err
	}
	g, ok := c.games[id]
	if !ok {
		return nil, fmt.Errorf("get game %s: %w", id, catalog.ErrGameNotFound)
	}
	return &g, nil
}

type rpcFixture struct {
	server *httptest.Server
	engine *Engine
	hub    *fakeHub
}

func newRPCFixture(t *testing.T, games GameCatalog) *rpcFixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(adminSecret), bcrypt.MinCost)
	require.NoError(t, err)

	hub := newFakeHub()
	engine := NewEngine(DefaultEngineConfig(), match.NewRegistry(hash), hub, nil, clockwork.NewFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)
	t.Cleanup(cancel)

	path, handler := NewMatchServiceHandler(NewMatchService(engine, games))
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &rpcFixture{server: server, engine: engine, hub: hub}
}

// call posts body to procedure using the connect unary JSON protocol.
func (f *rpcFixture) call(t *testing.T, procedure string, body any) (int, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(f.server.URL+procedure, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func defaultCatalog() fakeCatalog {
	return fakeCatalog{games: map[string]models.Game{"game-1": gameFixture()}}
}

func TestMatchService_CreateAndGet(t *testing.T) {
	f := newRPCFixture(t, defaultCatalog())

	status, body := f.call(t, CreateMatchProcedure, CreateMatchRequest{GameID: "game-1"})
	require.Equal(t, http.StatusOK, status, body)
	code, _ := body["access_code"].(string)
	assert.Regexp(t, `^\d{4}$`, code)

	status, body = f.call(t, AccessCodeExistsProcedure, AccessCodeExistsRequest{AccessCode: code})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["exists"])

	status, body = f.call(t, GetMatchProcedure, GetMatchRequest{AccessCode: code})
	require.Equal(t, http.StatusOK, status)
	snapshot, ok := body["match"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Capitals", snapshot["game_title"])
	assert.Equal(t, false, snapshot["begun"])
	assert.Equal(t, true, snapshot["is_accessible"])
}

func TestMatchService_CreateTestingMatchIsLocked(t *testing.T) {
	f := newRPCFixture(t, defaultCatalog())

	_, body := f.call(t, CreateMatchProcedure, CreateMatchRequest{GameID: "game-1", Testing: true})
	code, _ := body["access_code"].(string)

	snapshot, err := f.engine.Snapshot(context.Background(), code)
	require.NoError(t, err)
	assert.True(t, snapshot.IsTestingMode)
	assert.False(t, snapshot.IsAccessible)
}

func TestMatchService_Errors(t *testing.T) {
	f := newRPCFixture(t, defaultCatalog())
	broken := newRPCFixture(t, fakeCatalog{err: fmt.Errorf("connection refused")})

	tests := []struct {
		name      string
		fixture   *rpcFixture
		procedure string
		body      any
		code      string
	}{
		{"empty game id", f, CreateMatchProcedure, CreateMatchRequest{GameID: "  "}, "invalid_argument"},
		{"unknown game", f, CreateMatchProcedure, CreateMatchRequest{GameID: "nope"}, "not_found"},
		{"catalog failure", broken, CreateMatchProcedure, CreateMatchRequest{GameID: "game-1"}, "internal"},
		{"unknown match", f, GetMatchProcedure, GetMatchRequest{AccessCode: "0000"}, "not_found"},
		{"wrong secret", f, DeleteAllMatchesProcedure, DeleteAllMatchesRequest{Secret: "guess"}, "unauthenticated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := tt.fixture.call(t, tt.procedure, tt.body)
			assert.NotEqual(t, http.StatusOK, status)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestMatchService_AccessCodeExistsUnknown(t *testing.T) {
	f := newRPCFixture(t, defaultCatalog())

	status, body := f.call(t, AccessCodeExistsProcedure, AccessCodeExistsRequest{AccessCode: "4242"})
	require.Equal(t, http.StatusOK, status)
	assert.NotEqual(t, true, body["exists"])
}

func TestMatchService_DeleteAllMatches(t *testing.T) {
	f := newRPCFixture(t, defaultCatalog())

	for range 3 {
		status, _ := f.call(t, CreateMatchProcedure, CreateMatchRequest{GameID: "game-1"})
		require.Equal(t, http.StatusOK, status)
	}

	status, body := f.call(t, DeleteAllMatchesProcedure, DeleteAllMatchesRequest{Secret: adminSecret})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 3, body["deleted"])

	var cancelled, live int
	err := f.engine.Do(context.Background(), func() error {
		cancelled = len(sentOf[GameCancelled](f.hub))
		live = f.engine.registry.Len()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, cancelled)
	assert.Zero(t, live)
}

func TestToConnectError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", match.ErrNotFound), "not_found"},
		{fmt.Errorf("x: %w", match.ErrConflict), "already_exists"},
		{fmt.Errorf("x: %w", match.ErrInvalidState), "failed_precondition"},
		{fmt.Errorf("x: %w", match.ErrUnauthorized), "unauthenticated"},
		{context.Canceled, "canceled"},
		{ErrEngineStopped, "unavailable"},
		{fmt.Errorf("disk on fire"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toConnectError(tt.err).Code().String(), tt.err.Error())
	}
}

func TestEngineDoAfterStop(t *testing.T) {
	e := NewEngine(DefaultEngineConfig(), match.NewRegistry(nil), newFakeHub(), nil, clockwork.NewFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	err := e.Do(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrEngineStopped)
}

func TestEngineDoRecoversPanics(t *testing.T) {
	e := NewEngine(DefaultEngineConfig(), match.NewRegistry(nil), newFakeHub(), nil, clockwork.NewFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go e.Run(ctx)

	err := e.Do(ctx, func() error { panic("bad call") })
	assert.ErrorContains(t, err, "panic")

	assert.NoError(t, e.Do(ctx, func() error { return nil }))
}
