// Package watcher produces change notifications for a file or directory.
//
// A Source is a subscription to one path. It is created by an Opener bound to
// a backend: "notify" subscribes to operating system notifications through
// fsnotify, "poll" compares file metadata on a fixed interval. Both deliver
// events through an unbounded queue so a backend is never blocked by a slow
// consumer, and both report backend failures as a terminal error from Next
// once the already queued events have been consumed.
package watcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/conneroisu/glance/internal/errors"
	"github.com/conneroisu/glance/internal/logging"
)

// Source is a live subscription to filesystem changes.
type Source interface {
	// Next blocks until an event is available, the backend fails, or ctx is
	// done.
	Next(ctx context.Context) (RawEvent, error)
	// Close releases the subscription. It is safe to call more than once.
	Close() error
}

// Opener creates a Source for path.
type Opener func(path string) (Source, error)

// Backend names a notification mechanism.
type Backend string

const (
	BackendNotify Backend = "notify"
	BackendPoll   Backend = "poll"
)

// Backends lists every supported backend.
func Backends() []Backend {
	return []Backend{BackendNotify, BackendPoll}
}

// ParseBackend validates a backend name. The empty string selects notify.
func ParseBackend(name string) (Backend, error) {
	if name == "" {
		return BackendNotify, nil
	}
	b := Backend(strings.ToLower(strings.TrimSpace(name)))
	if !lo.Contains(Backends(), b) {
		names := lo.Map(Backends(), func(b Backend, _ int) string { return string(b) })
		return "", errors.NewValidationError(errors.ErrCodeValidationFailed,
			fmt.Sprintf("unknown watch backend %q (expected one of %s)", name, strings.Join(names, ", ")))
	}
	return b, nil
}

const (
	DefaultPollInterval  = time.Second
	DefaultRearmInterval = 100 * time.Millisecond
	DefaultRearmAttempts = 10
)

// Options tune the backends. Zero values select the defaults.
type Options struct {
	// PollInterval is the scan period of the poll backend.
	PollInterval time.Duration
	// RearmInterval and RearmAttempts bound how long the notify backend waits
	// for a removed file to reappear before giving up on it.
	RearmInterval time.Duration
	RearmAttempts int
	Logger        logging.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.RearmInterval <= 0 {
		o.RearmInterval = DefaultRearmInterval
	}
	if o.RearmAttempts <= 0 {
		o.RearmAttempts = DefaultRearmAttempts
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	o.Logger = o.Logger.WithComponent("watcher")
	return o
}

// NewOpener returns an Opener for the given backend.
func NewOpener(backend Backend, opts Options) (Opener, error) {
	opts = opts.withDefaults()

	switch backend {
	case BackendNotify, "":
		return func(path string) (Source, error) { return openNotify(path, opts) }, nil
	case BackendPoll:
		return func(path string) (Source, error) { return openPoll(path, opts) }, nil
	default:
		_, err := ParseBackend(string(backend))
		return nil, err
	}
}

var errSourceClosed = errors.NewWatchError(errors.ErrCodeSourceClosed, "source closed", nil)
