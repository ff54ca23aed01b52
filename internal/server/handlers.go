package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/conneroisu/glance/internal/errors"
	"github.com/conneroisu/glance/internal/page"
	"github.com/conneroisu/glance/internal/version"
)

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int64  `json:"sessions"`
	Backend  string `json:"backend"`
	Uptime   string `json:"uptime"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.target == "" {
		http.Error(w, "No file selected. Open /<file> to preview a document.", http.StatusNotFound)
		return
	}
	s.servePage(w, r, s.target)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	s.servePage(w, r, r.PathValue("path"))
}

func (s *Server) servePage(w http.ResponseWriter, r *http.Request, file string) {
	if _, err := s.resolve(file); err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	component := page.Page(page.Params{
		File:       file,
		Stylesheet: s.config.Page.Stylesheet,
		Dark:       s.config.Page.Dark,
	})
	if err := component.Render(r.Context(), &buf); err != nil {
		s.logger.Error(r.Context(), err, "Failed to render page", "file", file)
		http.Error(w, "Something went wrong: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:   "healthy",
		Version:  version.Get().Version,
		Sessions: s.Sessions(),
		Backend:  s.config.Watch.Backend,
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode health response")
	}
}

// writeError answers a request that failed before streaming began.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), err, "Request failed", "path", r.URL.Path)
	} else {
		s.logger.Debug(r.Context(), "Request rejected", "path", r.URL.Path, "status", status, "cause", err.Error())
	}
	http.Error(w, http.StatusText(status)+": "+err.Error(), status)
}

func statusFor(err error) int {
	if errors.Is(err, os.ErrNotExist) {
		return http.StatusNotFound
	}

	var ge *errors.GlanceError
	if !errors.As(err, &ge) {
		return http.StatusInternalServerError
	}

	switch {
	case ge.Code == errors.ErrCodeFileNotFound:
		return http.StatusNotFound
	case ge.Type == errors.ErrorTypeSecurity:
		return http.StatusForbidden
	case ge.Type == errors.ErrorTypeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
