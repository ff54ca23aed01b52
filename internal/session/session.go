// Package session runs the watch, render and push pipeline for one viewer.
//
// A Session owns one watch target, one live event source and the sending half
// of one delivery channel. It renders the target once when it starts, then
// once per accepted change, and pushes every result in order. It ends when
// the consumer departs, the source fails, or its context is cancelled, and
// it always releases the source and closes the channel on the way out.
package session

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/glance/internal/delivery"
	"github.com/conneroisu/glance/internal/errors"
	"github.com/conneroisu/glance/internal/logging"
	"github.com/conneroisu/glance/internal/reader"
	"github.com/conneroisu/glance/internal/renderer"
	"github.com/conneroisu/glance/internal/types"
	"github.com/conneroisu/glance/internal/watcher"
)

// State is the lifecycle phase of a session.
type State int32

const (
	StateStarting State = iota
	StateWatching
	StateTerminated
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateWatching:
		return "watching"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Reader reads the current text of a file.
type Reader interface {
	Read(ctx context.Context, path string) (string, error)
}

// Dependencies are the collaborators a session is built from. Nil fields
// select defaults: the notify backend, a reader with the default retry
// policy, a markdown renderer honouring the target's dangerous flag and a
// discarding logger.
type Dependencies struct {
	Source   watcher.Opener
	Reader   Reader
	Renderer renderer.Renderer
	Ignore   []string
	Logger   logging.Logger
}

// Session is one running pipeline.
type Session struct {
	target    types.WatchTarget
	open      watcher.Opener
	reader    Reader
	renderer  renderer.Renderer
	coalescer *watcher.Coalescer
	logger    logging.Logger

	state atomic.Int32
	seq   uint64

	done    chan struct{}
	errMu   sync.Mutex
	err     error
	started atomic.Bool
}

// New creates a session for target. Nothing is opened until Start or Run.
func New(target types.WatchTarget, deps Dependencies) *Session {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	logger := deps.Logger.WithComponent("session").With("path", target.Path())

	if deps.Source == nil {
		deps.Source = defaultOpener(deps.Logger)
	}
	if deps.Reader == nil {
		deps.Reader = reader.New(reader.WithLogger(deps.Logger))
	}
	if deps.Renderer == nil {
		deps.Renderer = renderer.NewMarkdown(renderer.Options{Dangerous: target.Dangerous(), Emoji: true})
	}

	return &Session{
		target:    target,
		open:      deps.Source,
		reader:    deps.Reader,
		renderer:  deps.Renderer,
		coalescer: watcher.NewCoalescer(target.Path(), deps.Ignore),
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// defaultOpener opens notify sources. Opener construction errors surface
// when the session starts.
func defaultOpener(logger logging.Logger) watcher.Opener {
	return func(path string) (watcher.Source, error) {
		open, err := watcher.NewOpener(watcher.BackendNotify, watcher.Options{Logger: logger})
		if err != nil {
			return nil, err
		}
		return open(path)
	}
}

// Target returns the watched target.
func (s *Session) Target() types.WatchTarget { return s.target }

// State reports the current lifecycle phase.
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session has terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the backend error that ended the session. It is nil while the
// session runs and when it ended because the consumer departed or its
// context was cancelled.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Start opens the event source and, if that succeeds, runs the session in a
// new goroutine. A construction failure is returned directly; the session is
// then terminated and out is closed.
func (s *Session) Start(ctx context.Context, out *delivery.Channel) error {
	src, err := s.begin(out)
	if err != nil {
		return err
	}
	go s.loop(ctx, src, out)
	return nil
}

// Run is Start followed by waiting for the session to end. It returns the
// construction error or the error reported by Err.
func (s *Session) Run(ctx context.Context, out *delivery.Channel) error {
	src, err := s.begin(out)
	if err != nil {
		return err
	}
	s.loop(ctx, src, out)
	return s.Err()
}

func (s *Session) begin(out *delivery.Channel) (watcher.Source, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "session already started", nil)
	}

	src, err := s.open(s.target.Path())
	if err != nil {
		s.logger.Warn(context.Background(), err, "Failed to open event source")
		s.finish(out, err)
		return nil, err
	}

	return src, nil
}

func (s *Session) loop(ctx context.Context, src watcher.Source, out *delivery.Channel) {
	var exitErr error
	defer func() {
		if err := src.Close(); err != nil {
			s.logger.Warn(ctx, err, "Failed to close event source")
		}
		s.finish(out, exitErr)
	}()

	if !s.update(ctx, s.target.Path(), out) {
		return
	}

	s.state.Store(int32(StateWatching))
	s.logger.Debug(ctx, "Session watching")

	for {
		ev, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Debug(ctx, "Session cancelled")
				return
			}
			s.logger.Debug(ctx, "Event source failed", "error", err.Error())
			exitErr = err
			return
		}

		if !s.coalescer.Accept(ev) {
			s.logger.Debug(ctx, "Event discarded", "op", ev.Op.String(), "event_path", ev.Path())
			continue
		}

		path := ev.Path()
		if path == "" {
			path = s.target.Path()
		}
		if !s.update(ctx, path, out) {
			return
		}
	}
}

// update reads, renders and pushes path. It reports whether the session
// should keep running.
func (s *Session) update(ctx context.Context, path string, out *delivery.Channel) bool {
	perf := logging.StartOperation(s.logger, "render")

	var result types.RenderResult
	text, err := s.read(ctx, path)
	switch {
	case err == nil:
		result = s.renderer.Render(text)
	case ctx.Err() != nil:
		return false
	default:
		s.logger.Warn(ctx, err, "Read failed")
		result = types.Failure(err.Error())
	}

	s.seq++
	result.Seq = s.seq
	result.Path = path

	if err := out.Push(ctx, result); err != nil {
		if stderrors.Is(err, delivery.ErrConsumerGone) {
			s.logger.Debug(ctx, "Consumer departed", "seq", result.Seq)
		} else {
			s.logger.Debug(ctx, "Push aborted", "cause", err.Error())
		}
		return false
	}

	perf.End(ctx, "seq", result.Seq, "failed", result.Failed())
	return true
}

// read returns the text to render for path. Directories render as an index
// of their documents instead of going through the retrying reader.
func (s *Session) read(ctx context.Context, path string) (string, error) {
	if isDir(path) {
		return directoryIndex(path)
	}
	return s.reader.Read(ctx, path)
}

func (s *Session) finish(out *delivery.Channel, err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()

	out.CloseSend()
	s.state.Store(int32(StateTerminated))
	close(s.done)
}
