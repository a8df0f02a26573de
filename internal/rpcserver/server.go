package rpcserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PBH-BTN/pbh-adapter-deluge/config"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/blocklist"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/types"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const sessionCookie = "_session_id"

// Server exposes the adapter core on a Deluge web compatible JSON endpoint.
type Server struct {
	cfg      *config.Config
	manager  *blocklist.Manager
	configs  blocklist.ConfigStore
	sessions *lru.Cache[string, time.Time]
	hub      *Hub
	methods  map[string]method
	router   *mux.Router
}

func New(cfg *config.Config, manager *blocklist.Manager, configs blocklist.ConfigStore) (*Server, error) {
	sessions, err := lru.New[string, time.Time](cfg.SessionCacheSize)
	if err != nil {
		zap.L().Error("Failed to create LRU cache for sessions",
			zap.Int("maxEntries", cfg.SessionCacheSize),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		manager:  manager,
		configs:  configs,
		sessions: sessions,
		hub:      NewHub(cfg.WsKeepalivePeriod),
	}
	s.methods = s.pluginMethods()

	manager.OnChange(func(snap types.BlocklistResponse) {
		s.hub.Broadcast(types.UpdateTypeBlocklist, types.BlocklistUpdate{Size: snap.Size})
	})

	r := mux.NewRouter()
	r.HandleFunc("/json", s.handleJSON).Methods(http.MethodPost)
	r.HandleFunc("/ws/updates", s.handleUpdates).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	s.router = r

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("RPC server stopping")
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("RPC server shutdown error", zap.Error(err))
		}
	}()

	zap.L().Info("RPC server listening", zap.String("addr", s.cfg.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zap.L().Error("RPC server failed", zap.Error(err))
		return err
	}
	return nil
}

func (s *Server) newSession() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	token := hex.EncodeToString(buf)
	s.sessions.Add(token, time.Now())
	return token, nil
}

func (s *Server) authenticated(r *http.Request) bool {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}
	return s.sessions.Contains(c.Value)
}

func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	s.hub.ServeWS(w, r)
}
