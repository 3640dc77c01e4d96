package transporthttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/kestrel-sync/docsync/contract"
	applog "github.com/kestrel-sync/docsync/pkg/logger"
	"github.com/kestrel-sync/docsync/syncmodel"
)

// Server is the reference HTTP transport's server half: it fronts a
// contract.Store[T] that represents the authoritative remote copy, exposing
// it over GET /sync/pull, POST /sync/push, GET /health, and GET /sync/ws.
type Server[T any] struct {
	store    contract.Store[T]
	logger   *slog.Logger
	validate *validator.Validate
	hub      *hub[T]
	now      func() syncmodel.Timestamp
	router   *mux.Router
}

// NewServer builds a Server fronting store. logger may be nil.
func NewServer[T any](store contract.Store[T], logger *slog.Logger) *Server[T] {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sync_http_server")

	s := &Server[T]{
		store:    store,
		logger:   logger,
		validate: validator.New(),
		hub:      newHub[T](logger),
		now:      func() syncmodel.Timestamp { return syncmodel.Timestamp(time.Now().UnixMilli()) },
	}

	r := mux.NewRouter()
	r.HandleFunc("/sync/pull", s.handlePull).Methods(http.MethodGet)
	r.HandleFunc("/sync/push", s.handlePush).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/sync/ws", s.hub.handleUpgrade).Methods(http.MethodGet)
	r.Use(applog.HTTPMiddleware(s.logger))
	s.router = r

	go s.hub.run()
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server[T]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Shutdown stops the websocket hub and closes all connected clients.
func (s *Server[T]) Shutdown() {
	s.hub.stop()
}

func (s *Server[T]) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server[T]) handlePull(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	since := syncmodel.Timestamp(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, pullResponse[T]{Success: false, Error: "invalid since parameter"})
			return
		}
		since = syncmodel.Timestamp(v)
	}

	changes, err := s.store.GetChangesSince(ctx, since)
	if err != nil {
		s.logger.Error("pull: failed to read changes", "error", err)
		writeJSON(w, http.StatusInternalServerError, pullResponse[T]{Success: false, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, pullResponse[T]{Success: true, Changes: changes, Timestamp: s.now()})
}

func (s *Server[T]) handlePush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var batch syncmodel.ChangeBatch[T]
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeJSON(w, http.StatusBadRequest, pushResponse[T]{Success: false, Error: "invalid request body: " + err.Error()})
		return
	}

	var conflicts []syncmodel.ConflictInfo[T]
	var applied []syncmodel.ChangeRecord[T]
	for _, change := range batch.Changes {
		if err := s.validate.Struct(change); err != nil {
			writeJSON(w, http.StatusBadRequest, pushResponse[T]{Success: false, Error: "invalid change for " + string(change.ID) + ": " + err.Error()})
			return
		}
		// DataPresent is not carried in the wire JSON; it follows from Op.
		change.DataPresent = change.Op != syncmodel.OpDelete

		conflict, err := s.applyIncoming(ctx, change)
		if err != nil {
			s.logger.Error("push: failed to apply change", "document_id", change.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, pushResponse[T]{Success: false, Error: err.Error()})
			return
		}
		if conflict != nil {
			conflicts = append(conflicts, *conflict)
		} else {
			applied = append(applied, change)
		}
	}

	s.hub.broadcast(applied)

	ts := s.now()
	writeJSON(w, http.StatusOK, pushResponse[T]{Success: true, Conflicts: conflicts, Timestamp: &ts})
}

// applyIncoming applies one pushed change to the authoritative store. A
// Delete is unconditional; a Create/Update whose stored version already
// exceeds the pushed version is reported as a conflict instead of applied,
// symmetric to the client-side apply logic in orchestrator/apply.go.
func (s *Server[T]) applyIncoming(ctx context.Context, change syncmodel.ChangeRecord[T]) (*syncmodel.ConflictInfo[T], error) {
	if change.Op == syncmodel.OpDelete {
		if err := s.store.Delete(ctx, change.ID); err != nil {
			return nil, err
		}
		return nil, s.store.PutChange(ctx, change)
	}

	existing, err := s.store.Get(ctx, change.ID)
	if err != nil {
		return nil, err
	}

	if existing != nil && existing.Version.Timestamp > change.Version.Timestamp {
		return &syncmodel.ConflictInfo[T]{
			DocumentID:    change.ID,
			LocalVersion:  change.Version,
			RemoteVersion: existing.Version,
			LocalData:     change.Data,
			RemoteData:    existing.Data,
		}, nil
	}

	doc := syncmodel.Document[T]{ID: change.ID, Data: change.Data, Version: change.Version}
	if err := s.store.Put(ctx, doc); err != nil {
		return nil, err
	}
	return nil, s.store.PutChange(ctx, change)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
