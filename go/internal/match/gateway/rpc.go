package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livequiz/go/internal/catalog"
	"github.com/mcdev12/livequiz/go/internal/match"
	"github.com/mcdev12/livequiz/go/internal/models"
)

const (
	// MatchServiceName is the fully-qualified name of the match management service.
	MatchServiceName = "livequiz.match.v1.MatchService"

	CreateMatchProcedure      = "/livequiz.match.v1.MatchService/CreateMatch"
	AccessCodeExistsProcedure = "/livequiz.match.v1.MatchService/AccessCodeExists"
	DeleteAllMatchesProcedure = "/livequiz.match.v1.MatchService/DeleteAllMatches"
	GetMatchProcedure         = "/livequiz.match.v1.MatchService/GetMatch"
)

type CreateMatchRequest struct {
	GameID  string `json:"game_id"`
	Testing bool   `json:"testing"`
}

type CreateMatchResponse struct {
	AccessCode string `json:"access_code"`
}

type AccessCodeExistsRequest struct {
	AccessCode string `json:"access_code"`
}

type AccessCodeExistsResponse struct {
	Exists bool `json:"exists"`
}

type DeleteAllMatchesRequest struct {
	Secret string `json:"secret"`
}

type DeleteAllMatchesResponse struct {
	Deleted int `json:"deleted"`
}

type GetMatchRequest struct {
	AccessCode string `json:"access_code"`
}

type GetMatchResponse struct {
	Match Snapshot `json:"match"`
}

// GameCatalog loads game definitions.
type GameCatalog interface {
	GetGameByID(ctx context.Context, id string) (*models.Game, error)
}

// jsonCodec serializes plain Go structs. It replaces connect's protobuf JSON
// codec under the same name.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// MatchService implements the match management RPCs.
type MatchService struct {
	engine  *Engine
	catalog GameCatalog
}

// NewMatchService creates a new match service
func NewMatchService(engine *Engine, catalog GameCatalog) *MatchService {
	return &MatchService{
		engine:  engine,
		catalog: catalog,
	}
}

// NewMatchServiceHandler builds the HTTP handler serving svc and returns the
// path to mount it on.
func NewMatchServiceHandler(svc *MatchService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(CreateMatchProcedure, connect.NewUnaryHandler(CreateMatchProcedure, svc.CreateMatch, opts...))
	mux.Handle(AccessCodeExistsProcedure, connect.NewUnaryHandler(AccessCodeExistsProcedure, svc.AccessCodeExists, opts...))
	mux.Handle(DeleteAllMatchesProcedure, connect.NewUnaryHandler(DeleteAllMatchesProcedure, svc.DeleteAllMatches, opts...))
	mux.Handle(GetMatchProcedure, connect.NewUnaryHandler(GetMatchProcedure, svc.GetMatch, opts...))
	return "/" + MatchServiceName + "/", mux
}

// CreateMatch snapshots a catalog game into a new live match
func (s *MatchService) CreateMatch(ctx context.Context, req *connect.Request[CreateMatchRequest]) (*connect.Response[CreateMatchResponse], error) {
	gameID := strings.TrimSpace(req.Msg.GameID)
	if gameID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("game_id is required"))
	}

	game, err := s.catalog.GetGameByID(ctx, gameID)
	if err != nil {
		if errors.Is(err, catalog.ErrGameNotFound) {
			return nil, connect.NewError(connect.CodeNotFound, err)
		}
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to load game")
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	code, err := s.engine.CreateMatch(ctx, *game, req.Msg.Testing)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CreateMatchResponse{AccessCode: code}), nil
}

// AccessCodeExists reports whether a live match uses the code
func (s *MatchService) AccessCodeExists(ctx context.Context, req *connect.Request[AccessCodeExistsRequest]) (*connect.Response[AccessCodeExistsResponse], error) {
	exists, err := s.engine.AccessCodeExists(ctx, req.Msg.AccessCode)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&AccessCodeExistsResponse{Exists: exists}), nil
}

// DeleteAllMatches closes every live match
func (s *MatchService) DeleteAllMatches(ctx context.Context, req *connect.Request[DeleteAllMatchesRequest]) (*connect.Response[DeleteAllMatchesResponse], error) {
	deleted, err := s.engine.DeleteAllMatches(ctx, req.Msg.Secret)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DeleteAllMatchesResponse{Deleted: deleted}), nil
}

// GetMatch returns the public state of a live match
func (s *MatchService) GetMatch(ctx context.Context, req *connect.Request[GetMatchRequest]) (*connect.Response[GetMatchResponse], error) {
	snapshot, err := s.engine.Snapshot(ctx, req.Msg.AccessCode)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetMatchResponse{Match: snapshot}), nil
}

func toConnectError(err error) *connect.Error {
	switch {
	case errors.Is(err, match.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, match.ErrConflict):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, match.ErrInvalidState):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, match.ErrUnauthorized):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, ErrEngineStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, fmt.Errorf("match service: %w", err))
	}
}
