package watcher

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/conneroisu/glance/internal/errors"
	"github.com/conneroisu/glance/internal/logging"
)

// fileState is the metadata compared between two scans.
type fileState struct {
	size    int64
	modTime time.Time
	mode    fs.FileMode
}

func stateOf(info fs.FileInfo) fileState {
	return fileState{size: info.Size(), modTime: info.ModTime(), mode: info.Mode()}
}

// pollSource synthesizes events by periodically stating the watched path.
// It works on filesystems without change notification support, such as
// network mounts and some container volumes.
type pollSource struct {
	root     string
	isDir    bool
	interval time.Duration
	queue    *eventQueue
	logger   logging.Logger
	states   map[string]fileState

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func openPoll(path string, opts Options) (Source, error) {
	root, info, err := resolveRoot(path)
	if err != nil {
		return nil, err
	}

	s := &pollSource{
		root:     root,
		isDir:    info.IsDir(),
		interval: opts.PollInterval,
		queue:    newEventQueue(),
		logger:   opts.Logger.With("backend", string(BackendPoll), "root", root),
		done:     make(chan struct{}),
	}

	s.states, err = s.scan()
	if err != nil {
		return nil, errors.WrapWatch(err, "initial scan failed").WithPath(path)
	}

	s.wg.Add(1)
	go s.loop()

	s.logger.Debug(context.Background(), "Polling path", "interval", s.interval.String(), "files", len(s.states))

	return s, nil
}

func (s *pollSource) Next(ctx context.Context) (RawEvent, error) {
	return s.queue.next(ctx)
}

func (s *pollSource) Close() error {
	s.closeOnce.Do(func() {
		s.queue.fail(errSourceClosed)
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *pollSource) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		current, err := s.scan()
		if err != nil {
			s.logger.Debug(context.Background(), "Watch backend failed", "error", err.Error())
			s.queue.fail(errors.WrapWatch(err, "scan failed"))
			return
		}

		for _, ev := range s.diff(s.states, current) {
			s.queue.push(ev)
		}
		s.states = current
	}
}

// scan stats the root, walking it when it is a directory. A missing root
// yields an empty snapshot; any other error is returned.
func (s *pollSource) scan() (map[string]fileState, error) {
	states := make(map[string]fileState)

	info, err := os.Stat(s.root)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return states, nil
		}
		return nil, err
	}

	if !info.IsDir() {
		states[s.root] = stateOf(info)
		return states, nil
	}

	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		states[path] = stateOf(fi)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return states, nil
}

// diff compares two snapshots. Events come out in lexical path order.
func (s *pollSource) diff(previous, current map[string]fileState) []RawEvent {
	paths := lo.Uniq(append(lo.Keys(previous), lo.Keys(current)...))
	sort.Strings(paths)

	var events []RawEvent
	for _, path := range paths {
		before, existed := previous[path]
		after, exists := current[path]

		var op Op
		switch {
		case !existed:
			op = Create
			// The target file came back, most likely from a save that
			// replaced it. Its content is new.
			if !s.isDir && path == s.root {
				op |= DataModify
			}
		case !exists:
			op = Remove
		case before.size != after.size || !before.modTime.Equal(after.modTime):
			op = DataModify
		case before.mode != after.mode:
			op = MetadataModify
		default:
			continue
		}

		events = append(events, RawEvent{Op: op, Paths: []string{path}})
	}

	return events
}
