package server

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/conneroisu/glance/internal/websocket"
)

const (
	// streamEvent names the SSE event the page shell swaps into its body.
	streamEvent = "body"
	keepAlive   = ": keep-alive-text\n\n"
)

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// writeEvent writes data as one SSE event, one data line per line of text.
func writeEvent(w io.Writer, event, data string) error {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteByte('\n')
	for _, line := range strings.Split(lineBreaks.Replace(data), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	path, err := s.resolve(r.PathValue("path"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out, err := s.startSession(ctx, path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// The session ends on its next push once the viewer is gone.
	defer out.Close()

	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn(ctx, err, "Streaming unsupported")
		return
	}

	logger := s.logger.With("path", path, "remote", r.RemoteAddr)
	logger.Info(ctx, "Viewer connected", "transport", "sse")
	defer logger.Info(ctx, "Viewer disconnected", "transport", "sse")

	heartbeat := time.NewTicker(s.heartbeat())
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case res, ok := <-out.Results():
			if !ok {
				return
			}
			if err := writeEvent(w, streamEvent, res.Body()); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}

		case <-heartbeat.C:
			if _, err := io.WriteString(w, keepAlive); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	path, err := s.resolve(r.PathValue("path"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out, err := s.startSession(ctx, path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer out.Close()

	relay, err := websocket.Accept(w, r, websocket.Options{
		OriginPatterns: s.config.Server.AllowedOrigins,
		PingInterval:   s.heartbeat(),
		Logger:         s.logger,
	})
	if err != nil {
		s.logger.Warn(ctx, err, "Websocket upgrade failed", "path", path)
		return
	}

	logger := s.logger.With("path", path, "remote", r.RemoteAddr)
	logger.Info(ctx, "Viewer connected", "transport", "websocket")
	if err := relay.Run(ctx, out.Results()); err != nil {
		logger.Debug(ctx, "Websocket relay ended", "cause", err.Error())
	}
	logger.Info(ctx, "Viewer disconnected", "transport", "websocket")
}
