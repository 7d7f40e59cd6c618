// Package api exposes a store over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/kumarlokesh/cow-trie/internal/store"
	"github.com/kumarlokesh/cow-trie/internal/wal"
)

// maxValueSize bounds request bodies; larger values do not fit a WAL record.
const maxValueSize = 64*1024 - 1

// Server represents the HTTP API server
type Server struct {
	store  *store.Store
	server *http.Server
	logger zerolog.Logger
}

// KeyResponse is the body returned for single key reads and writes
type KeyResponse struct {
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Version uint64 `json:"version"`
}

// ListResponse is the body returned for prefix listings
type ListResponse struct {
	Prefix  string   `json:"prefix"`
	Keys    []string `json:"keys"`
	Version uint64   `json:"version"`
}

// VersionResponse describes one store version
type VersionResponse struct {
	Version   uint64    `json:"version"`
	LSN       uint64    `json:"lsn"`
	Keys      int       `json:"keys"`
	CreatedAt time.Time `json:"created_at"`
	Retained  []uint64  `json:"retained,omitempty"`
}

// NewServer creates a new API server
func NewServer(addr string, st *store.Store, logger zerolog.Logger) *Server {
	s := &Server{
		store:  st,
		logger: logger.With().Str("component", "api").Logger(),
	}

	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	r.HandleFunc("/keys", s.listKeys).Methods(http.MethodGet)
	r.HandleFunc("/keys/{key:.+}", s.getKey).Methods(http.MethodGet)
	r.HandleFunc("/keys/{key:.+}", s.putKey).Methods(http.MethodPut)
	r.HandleFunc("/keys/{key:.+}", s.deleteKey).Methods(http.MethodDelete)

	r.HandleFunc("/versions/current", s.currentVersion).Methods(http.MethodGet)
	r.HandleFunc("/versions/{id:[0-9]+}/keys/{key:.+}", s.getKeyAtVersion).Methods(http.MethodGet)

	r.HandleFunc("/checkpoint", s.checkpoint).Methods(http.MethodPost)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// logRequests logs every request with its status and latency
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("Handled request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listKeys(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	snap := s.store.Snapshot()

	keys := snap.Trie.KeysWithPrefix(prefix)
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Prefix: prefix, Keys: keys, Version: snap.ID})
}

func (s *Server) getKey(w http.ResponseWriter, r *http.Request) {
	s.readKey(w, mux.Vars(r)["key"], s.store.Snapshot())
}

func (s *Server) getKeyAtVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid version id")
		return
	}
	v, ok := s.store.Version(id)
	if !ok {
		writeError(w, http.StatusNotFound, "version not retained")
		return
	}
	s.readKey(w, vars["key"], v)
}

func (s *Server) readKey(w http.ResponseWriter, key string, v *store.Version) {
	value, err := v.Get(key)
	if errors.Is(err, store.ErrKeyNotFound) {
		writeError(w, http.StatusNotFound, "key not found")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, KeyResponse{Key: key, Value: string(value), Version: v.ID})
}

func (s *Server) putKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxValueSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "value too large")
		return
	}

	v, err := s.store.Put(key, body)
	if errors.Is(err, wal.ErrRecordTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "key too large")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, KeyResponse{Key: key, Version: v.ID})
}

func (s *Server) deleteKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	v, err := s.store.Delete(key)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, KeyResponse{Key: key, Version: v.ID})
}

func (s *Server) currentVersion(w http.ResponseWriter, r *http.Request) {
	v := s.store.Snapshot()
	writeJSON(w, http.StatusOK, VersionResponse{
		Version:   v.ID,
		LSN:       v.LSN,
		Keys:      v.Trie.Len(),
		CreatedAt: v.CreatedAt,
		Retained:  s.store.Versions(),
	})
}

func (s *Server) checkpoint(w http.ResponseWriter, r *http.Request) {
	lsn, err := s.store.Checkpoint()
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"lsn": lsn})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error().Err(err).Msg("Request failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
