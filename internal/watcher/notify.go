package watcher

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/glance/internal/errors"
	"github.com/conneroisu/glance/internal/logging"
)

var errStreamEnded = stderrors.New("notification stream ended")

// notifySource watches a path with fsnotify. Directories are watched
// recursively, including subdirectories created after the source opened.
type notifySource struct {
	root   string
	isDir  bool
	fs     *fsnotify.Watcher
	queue  *eventQueue
	opts   Options
	logger logging.Logger

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	rearming  atomic.Bool
	wg        sync.WaitGroup
}

// resolveRoot makes path absolute and stats it.
func resolveRoot(path string) (string, os.FileInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", nil, errors.WrapWatch(err, "failed to resolve watch path").WithPath(path)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return "", nil, errors.ErrFileNotFound(path, err)
		}
		return "", nil, errors.WrapWatch(err, "failed to stat watch path").WithPath(path)
	}

	return abs, info, nil
}

func openNotify(path string, opts Options) (Source, error) {
	root, info, err := resolveRoot(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapWatch(err, "failed to create watcher")
	}

	s := &notifySource{
		root:   root,
		isDir:  info.IsDir(),
		fs:     w,
		queue:  newEventQueue(),
		opts:   opts,
		logger: opts.Logger.With("backend", string(BackendNotify), "root", root),
		done:   make(chan struct{}),
	}

	if s.isDir {
		err = s.addRecursive(root)
	} else {
		err = w.Add(root)
	}
	if err != nil {
		_ = w.Close()
		return nil, errors.WrapWatch(err, "failed to subscribe").WithPath(path)
	}

	s.wg.Add(1)
	go s.loop()

	s.logger.Debug(context.Background(), "Watching path", "directory", s.isDir)

	return s, nil
}

// addRecursive adds dir and every directory below it.
func (s *notifySource) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories removed during the walk are not an error.
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return s.fs.Add(path)
		}
		return nil
	})
}

func (s *notifySource) Next(ctx context.Context) (RawEvent, error) {
	return s.queue.next(ctx)
}

func (s *notifySource) Close() error {
	s.closeOnce.Do(func() {
		s.queue.fail(errSourceClosed)
		close(s.done)
		s.closeErr = s.fs.Close()
		s.wg.Wait()
	})
	return s.closeErr
}

func (s *notifySource) loop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.fs.Events:
			if !ok {
				s.queue.fail(errors.WrapWatch(errStreamEnded, "watch backend stopped"))
				return
			}
			s.handle(ev)
		case err, ok := <-s.fs.Errors:
			if !ok {
				err = errStreamEnded
			}
			s.logger.Debug(context.Background(), "Watch backend failed", "error", err.Error())
			s.queue.fail(errors.WrapWatch(err, "watch backend failed"))
			return
		}
	}
}

func (s *notifySource) handle(ev fsnotify.Event) {
	op := translateOp(ev.Op)
	if op == 0 {
		return
	}

	if s.isDir && op.Has(Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := s.addRecursive(ev.Name); err != nil {
				s.logger.Warn(context.Background(), err, "Failed to watch new directory", "path", ev.Name)
			}
		}
	}

	s.queue.push(RawEvent{Op: op, Paths: []string{ev.Name}})

	if !s.isDir && ev.Name == s.root && op.Has(Remove|Rename) {
		s.startRearm()
	}
}

// startRearm waits for a removed or renamed target file to reappear and
// subscribes to it again. Editors that save by writing a new file and
// renaming it over the old one would otherwise silence the source.
func (s *notifySource) startRearm() {
	if !s.rearming.CompareAndSwap(false, true) {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.rearming.Store(false)
		s.rearm()
	}()
}

func (s *notifySource) rearm() {
	ctx := context.Background()
	ticker := time.NewTicker(s.opts.RearmInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= s.opts.RearmAttempts; attempt++ {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		if _, err := os.Stat(s.root); err != nil {
			continue
		}

		// A renamed file keeps its old watch; drop it before subscribing to
		// the new file at the same path.
		_ = s.fs.Remove(s.root)
		if err := s.fs.Add(s.root); err != nil {
			s.logger.Warn(ctx, err, "Failed to re-arm watch", "attempt", attempt)
			continue
		}

		s.logger.Debug(ctx, "Re-armed watch", "attempt", attempt)
		s.queue.push(RawEvent{Op: DataModify, Paths: []string{s.root}})
		return
	}

	s.logger.Warn(ctx, nil, "Watched file did not reappear", "attempts", s.opts.RearmAttempts)
}

func translateOp(op fsnotify.Op) Op {
	var out Op
	if op.Has(fsnotify.Create) {
		out |= Create
	}
	if op.Has(fsnotify.Write) {
		out |= DataModify
	}
	if op.Has(fsnotify.Remove) {
		out |= Remove
	}
	if op.Has(fsnotify.Rename) {
		out |= Rename
	}
	if op.Has(fsnotify.Chmod) {
		out |= MetadataModify
	}
	return out
}
