// Package reader reads watched files, retrying briefly so that editors which
// save by deleting and recreating a file do not surface as read errors.
package reader

import (
	"bytes"
	"context"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/conneroisu/glance/internal/errors"
	"github.com/conneroisu/glance/internal/logging"
)

const (
	// DefaultAttempts is the total number of reads tried before giving up.
	DefaultAttempts = 3
	// DefaultBackoff is the fixed wait between two attempts.
	DefaultBackoff = 300 * time.Millisecond
)

// ReadFunc reads a whole file.
type ReadFunc func(path string) ([]byte, error)

// Reader reads file contents with a bounded, fixed-interval retry.
type Reader struct {
	attempts int
	backoff  time.Duration
	readFile ReadFunc
	logger   logging.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithAttempts sets the total number of attempts. Values below one are
// treated as one.
func WithAttempts(n int) Option {
	return func(r *Reader) {
		if n < 1 {
			n = 1
		}
		r.attempts = n
	}
}

// WithBackoff sets the wait between attempts.
func WithBackoff(d time.Duration) Option {
	return func(r *Reader) { r.backoff = d }
}

// WithReadFunc replaces os.ReadFile.
func WithReadFunc(fn ReadFunc) Option {
	return func(r *Reader) { r.readFile = fn }
}

// WithLogger sets the logger used to report retries.
func WithLogger(logger logging.Logger) Option {
	return func(r *Reader) { r.logger = logger.WithComponent("reader") }
}

// New creates a Reader with the default policy of 3 attempts 300ms apart.
func New(opts ...Option) *Reader {
	r := &Reader{
		attempts: DefaultAttempts,
		backoff:  DefaultBackoff,
		readFile: os.ReadFile,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read returns the full text of path. It either yields the whole current
// content or, once every attempt failed, a read error carrying the last cause.
// Cancelling ctx interrupts the wait between attempts.
func (r *Reader) Read(ctx context.Context, path string) (string, error) {
	var (
		data    []byte
		attempt int
	)

	operation := func() error {
		attempt++
		b, err := r.readFile(path)
		if err != nil {
			return err
		}
		data = b
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.backoff), uint64(r.attempts-1)),
		ctx,
	)

	notify := func(err error, wait time.Duration) {
		r.logger.Debug(ctx, "read failed, retrying",
			"path", path,
			"attempt", attempt,
			"wait", wait.String(),
			"cause", err.Error())
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", errors.NewReadError(path, err).WithContext("attempts", attempt)
	}

	return decode(data), nil
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF16LE = []byte{0xFF, 0xFE}
)

// decode converts BOM-prefixed UTF-8 and UTF-16 files to plain UTF-8.
// Anything without a byte order mark is returned untouched.
func decode(data []byte) string {
	if !bytes.HasPrefix(data, bomUTF8) && !bytes.HasPrefix(data, bomUTF16BE) && !bytes.HasPrefix(data, bomUTF16LE) {
		return string(data)
	}

	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return string(data)
	}
	return string(out)
}
