package httpapi

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/and161185/decksync/internal/convert"
	"github.com/and161185/decksync/internal/model"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type registerResponse struct {
	convert.Envelope
	UserID string `json:"user_id"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := s.auth.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{Envelope: convert.Envelope{Success: true}, UserID: id.String()})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req convert.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	tok, u, err := s.auth.LoginWithIP(r.Context(), req.Email, req.Password, r.RemoteAddr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.LoginResponse{
		Envelope:     convert.Envelope{Success: true},
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    convert.EpochSeconds(tok.ExpiresAt.Unix()),
		User:         userDTO(u),
	})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req convert.RefreshRequest
	if !decode(w, r, &req) {
		return
	}
	tok, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.RefreshResponse{
		Envelope:     convert.Envelope{Success: true},
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    convert.EpochSeconds(tok.ExpiresAt.Unix()),
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	uid, _ := UserIDFromCtx(r.Context())
	if err := s.auth.Logout(r.Context(), uid); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.Envelope{Success: true})
}

func deckDTOs(ds []model.OwnedDeck) []convert.DeckDTO {
	out := make([]convert.DeckDTO, 0, len(ds))
	for _, d := range ds {
		out = append(out, convert.ToDeckDTO(d))
	}
	return out
}

func (s *Server) purchases(w http.ResponseWriter, r *http.Request) {
	uid, _ := UserIDFromCtx(r.Context())
	decks, err := s.catalog.Owned(r.Context(), uid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.CatalogResponse{
		Envelope:   convert.Envelope{Success: true},
		Decks:      deckDTOs(decks),
		TotalCount: len(decks),
	})
}

func (s *Server) checkUpdates(w http.ResponseWriter, r *http.Request) {
	uid, _ := UserIDFromCtx(r.Context())
	decks, n, err := s.catalog.CheckUpdates(r.Context(), uid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.CheckUpdatesResponse{
		Envelope:         convert.Envelope{Success: true},
		Decks:            deckDTOs(decks),
		UpdatesAvailable: n,
		TotalDecks:       len(decks),
	})
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	uid, _ := UserIDFromCtx(r.Context())
	var req convert.DownloadRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := s.catalog.Download(r.Context(), uid, req.DeckID, req.Version)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.DownloadResponse{
		Envelope:    convert.Envelope{Success: true},
		DeckID:      g.DeckID,
		Title:       g.Title,
		Version:     g.Version,
		DownloadURL: g.DownloadURL,
		ExpiresAt:   convert.EpochSeconds(g.ExpiresAt),
	})
}

func (s *Server) batchDownload(w http.ResponseWriter, r *http.Request) {
	uid, _ := UserIDFromCtx(r.Context())
	var req convert.BatchDownloadRequest
	if !decode(w, r, &req) {
		return
	}
	grants, failed, err := s.catalog.BatchDownload(r.Context(), uid, req.DeckIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := convert.BatchDownloadResponse{
		Envelope:  convert.Envelope{Success: true},
		Downloads: make([]convert.BatchDownloadItem, 0, len(grants)),
		Failed:    make([]convert.BatchFailure, 0, len(failed)),
	}
	for _, g := range grants {
		resp.Downloads = append(resp.Downloads, convert.BatchDownloadItem{
			Success:     true,
			DeckID:      g.DeckID,
			Title:       g.Title,
			Version:     g.Version,
			DownloadURL: g.DownloadURL,
			ExpiresAt:   convert.EpochSeconds(g.ExpiresAt),
		})
	}
	for _, f := range failed {
		resp.Failed = append(resp.Failed, convert.BatchFailure{DeckID: f.DeckID, Title: f.Title, Error: f.Error})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) changelog(w http.ResponseWriter, r *http.Request) {
	uid, _ := UserIDFromCtx(r.Context())
	var req convert.ChangelogRequest
	if !decode(w, r, &req) {
		return
	}
	cl, err := s.catalog.Changelog(r.Context(), uid, req.DeckID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToChangelogResponse(cl))
}

func (s *Server) syncProgress(w http.ResponseWriter, r *http.Request) {
	uid, _ := UserIDFromCtx(r.Context())
	var req convert.SyncProgressRequest
	if !decode(w, r, &req) {
		return
	}
	snaps := make([]model.ProgressSnapshot, 0, len(req.Progress))
	for _, p := range req.Progress {
		snaps = append(snaps, convert.FromProgressDTO(p))
	}
	n, err := s.progress.Sync(r.Context(), uid, snaps)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.SyncProgressResponse{Envelope: convert.Envelope{Success: true}, SyncedCount: n})
}

func (s *Server) checkNotifications(w http.ResponseWriter, r *http.Request) {
	uid, _ := UserIDFromCtx(r.Context())
	var req convert.NotificationsRequest
	if !decode(w, r, &req) {
		return
	}
	page, err := s.notes.Check(r.Context(), uid, req.MarkAsRead, req.Limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToNotificationsResponse(page))
}

// file serves a package behind a pre-signed download token.
func (s *Server) file(w http.ResponseWriter, r *http.Request) {
	key, err := s.catalog.ResolveFile(r.PathValue("token"))
	if err != nil {
		writeError(w, http.StatusForbidden, "Download link is invalid or expired")
		return
	}
	if _, err := fs.Stat(s.files, key); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "Package not found")
			return
		}
		s.fail(w, r, err)
		return
	}
	http.ServeFileFS(w, r, s.files, key)
}
