package tail

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

type Options struct {
	StartAtEnd   bool
	PollInterval time.Duration
	// ReadSize caps the bytes handed over per callback. Defaults to 32 KiB.
	ReadSize int
	// OnTruncate runs when the file shrinks below the read offset. Reading
	// restarts from the beginning afterwards.
	OnTruncate func()
}

// Follower streams the bytes appended to a growing raw payload dump, such as
// the output of an external sniffer writing one flow to disk.
type Follower struct {
	path string
	opts Options

	mu      sync.Mutex
	file    *os.File
	offset  int64
	stopped bool
}

func NewFollower(path string, opts Options) (*Follower, error) {
	if path == "" {
		return nil, errors.New("tail: empty path")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.ReadSize <= 0 {
		opts.ReadSize = 32 * 1024
	}
	return &Follower{path: path, opts: opts}, nil
}

func (t *Follower) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil
	}
	t.stopped = true
	if t.file != nil {
		err := t.file.Close()
		t.file = nil
		return err
	}
	return nil
}

// Offset is the number of bytes handed over since the last (re)start.
func (t *Follower) Offset() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset
}

// Run calls onData with each newly appended block until ctx is done. The
// slice is owned by the callee.
func (t *Follower) Run(ctx context.Context, onData func(b []byte)) error {
	if onData == nil {
		return errors.New("tail: onData is nil")
	}

	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	defer f.Close()

	whence := io.SeekStart
	if t.opts.StartAtEnd {
		whence = io.SeekEnd
	}
	off, err := f.Seek(0, whence)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.file = f
	t.stopped = false
	t.offset = off
	t.mu.Unlock()

	readBuf := make([]byte, t.opts.ReadSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fi, err := f.Stat()
		if err != nil {
			return err
		}
		if fi.Size() < t.Offset() {
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}
			t.setOffset(0)
			if t.opts.OnTruncate != nil {
				t.opts.OnTruncate()
			}
		}

		n, rerr := f.Read(readBuf)
		if n > 0 {
			t.setOffset(t.Offset() + int64(n))
			onData(append([]byte(nil), readBuf[:n]...))
		}

		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return rerr
		}
		if n == 0 || rerr != nil {
			if !sleep(ctx, t.opts.PollInterval) {
				return nil
			}
		}
	}
}

func (t *Follower) setOffset(v int64) {
	t.mu.Lock()
	t.offset = v
	t.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
