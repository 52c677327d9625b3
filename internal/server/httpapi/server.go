// Package httpapi exposes the deck service over JSON/HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/decksync/internal/convert"
	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
	"github.com/and161185/decksync/internal/service"
)

const maxBody = 1 << 20

const (
	msgInternal     = "Internal error"
	msgAuth         = "Authentication failed"
	msgRateLimited  = "Too many login attempts. Try again later."
	msgNotFound     = "Deck not found or not owned"
	msgExists       = "Account already exists"
	msgSyncDisabled = "Progress sync is not enabled for this account"
)

// Server wires services into HTTP handlers.
type Server struct {
	auth     service.AuthService
	catalog  service.CatalogService
	progress service.ProgressService
	notes    service.NotificationService
	files    fs.FS
	log      *zap.Logger
}

// New constructs a server. files holds the deck packages addressed by version file keys.
func New(auth service.AuthService, catalog service.CatalogService, progress service.ProgressService,
	notes service.NotificationService, files fs.FS, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{auth: auth, catalog: catalog, progress: progress, notes: notes, files: files, log: log}
}

// Handler returns the routed handler with logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.Handler) {
		mux.Handle(pattern, Logging(s.log, pattern, Recover(s.log, h)))
	}
	route("POST /addon-register", http.HandlerFunc(s.register))
	route("POST /addon-login", http.HandlerFunc(s.login))
	route("POST /addon-refresh-token", http.HandlerFunc(s.refresh))
	route("POST /addon-logout", s.authed(s.logout))
	route("GET /addon-get-purchases", s.authed(s.purchases))
	route("POST /addon-check-updates", s.authed(s.checkUpdates))
	route("POST /addon-download-deck", s.authed(s.download))
	route("POST /addon-batch-download", s.authed(s.batchDownload))
	route("POST /addon-get-changelog", s.authed(s.changelog))
	route("POST /addon-sync-progress", s.authed(s.syncProgress))
	route("POST /addon-check-notifications", s.authed(s.checkNotifications))
	route("GET /files/{token}", http.HandlerFunc(s.file))
	route("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, convert.Envelope{Success: true})
	}))
	return mux
}

// authed verifies the bearer access token and stores the subject in the request context.
func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, msgAuth)
			return
		}
		uid, err := s.auth.ParseAccess(tok)
		if err != nil {
			writeError(w, http.StatusUnauthorized, msgAuth)
			return
		}
		h(w, r.WithContext(WithUserID(r.Context(), uid)))
	})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, convert.Envelope{Success: false, Error: msg})
}

// fail maps a service error to a status and a client-safe message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, msgAuth)
	case errors.Is(err, errs.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, msgRateLimited)
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, errs.ErrAlreadyExists):
		writeError(w, http.StatusConflict, msgExists)
	case errors.Is(err, errs.ErrSyncDisabled):
		writeError(w, http.StatusForbidden, msgSyncDisabled)
	case errors.Is(err, service.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

func userDTO(u model.User) json.RawMessage {
	b, _ := json.Marshal(convert.UserDTO{ID: u.ID.String(), Email: u.Email, DisplayName: u.DisplayName})
	return b
}
