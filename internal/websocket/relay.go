// Package websocket relays render results to a browser over a websocket
// connection. It is the alternative to the SSE stream for clients that
// prefer a bidirectional transport.
package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/conneroisu/glance/internal/logging"
	"github.com/conneroisu/glance/internal/types"
)

const (
	DefaultPingInterval = time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// UpdateMessage is the JSON frame sent for every render result.
type UpdateMessage struct {
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Seq       uint64    `json:"seq"`
	Path      string    `json:"path,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUpdateMessage converts a render result into a frame.
func NewUpdateMessage(r types.RenderResult) UpdateMessage {
	return UpdateMessage{
		Type:      "body",
		Content:   r.Body(),
		Seq:       r.Seq,
		Path:      r.Path,
		Failed:    r.Failed(),
		Timestamp: r.At,
	}
}

// Options configure a Relay.
type Options struct {
	// OriginPatterns lists extra origins allowed to connect. The request's
	// own host is always allowed.
	OriginPatterns []string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	Logger         logging.Logger
}

// Relay owns one accepted websocket connection.
type Relay struct {
	conn   *websocket.Conn
	opts   Options
	logger logging.Logger
}

// Accept upgrades the request. On failure a response has already been
// written.
func Accept(w http.ResponseWriter, r *http.Request, opts Options) (*Relay, error) {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  opts.OriginPatterns,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		return nil, err
	}

	return &Relay{
		conn:   conn,
		opts:   opts,
		logger: opts.Logger.WithComponent("websocket").With("remote", r.RemoteAddr),
	}, nil
}

// Run writes every result from results until the stream ends, the peer goes
// away or ctx is done. The connection is closed when Run returns.
func (r *Relay) Run(ctx context.Context, results <-chan types.RenderResult) error {
	// Incoming messages are discarded; the returned context is cancelled
	// when the peer closes the connection.
	ctx = r.conn.CloseRead(ctx)

	ticker := time.NewTicker(r.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = r.conn.Close(websocket.StatusGoingAway, "")
			return ctx.Err()

		case res, ok := <-results:
			if !ok {
				r.logger.Debug(ctx, "Stream ended")
				return r.conn.Close(websocket.StatusNormalClosure, "stream ended")
			}

			writeCtx, cancel := context.WithTimeout(ctx, r.opts.WriteTimeout)
			err := wsjson.Write(writeCtx, r.conn, NewUpdateMessage(res))
			cancel()
			if err != nil {
				r.logger.Debug(ctx, "Write failed", "cause", err.Error())
				_ = r.conn.Close(websocket.StatusInternalError, "write failed")
				return err
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, r.opts.WriteTimeout)
			err := r.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				r.logger.Debug(ctx, "Ping failed", "cause", err.Error())
				_ = r.conn.Close(websocket.StatusGoingAway, "")
				return err
			}
		}
	}
}
