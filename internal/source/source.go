// Package source resolves a log target (file, stdin, compressed file,
// followed file or Kubernetes pod) into a restartable reader factory.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/nxadm/tail"

	"github.com/ppiankov/logmedic/internal/k8s"
)

// Opener returns a fresh reader positioned at the start of the log.
// Every call yields an independent reader, so consumers can restart.
type Opener func() (io.ReadCloser, error)

// Stdin is the target name that reads standard input.
const Stdin = "-"

// KubePrefix marks a Kubernetes pod log target: k8s://namespace/pod[/container].
const KubePrefix = "k8s://"

// ErrNotFound is returned when a file target does not exist.
var ErrNotFound = errors.New("log source not found")

// Options configures how a target is opened.
type Options struct {
	Follow     bool
	FollowIdle time.Duration // stop following after this long without new lines; 0 waits for ctx
	Since      time.Duration
	Previous   bool

	Stdin      io.Reader                                  // defaults to os.Stdin
	KubeClient func(namespace string) (*k8s.Client, error) // defaults to k8s.NewClient
}

// Open resolves target into an Opener. Stdin, pod logs and followed files
// are buffered in memory once; plain and compressed files are re-read
// from disk on every call.
func Open(ctx context.Context, target string, opts Options) (Opener, error) {
	switch {
	case target == Stdin:
		in := opts.Stdin
		if in == nil {
			in = os.Stdin
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return FromBytes(data), nil

	case strings.HasPrefix(target, KubePrefix):
		return openPod(ctx, strings.TrimPrefix(target, KubePrefix), opts)
	}

	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
		}
		return nil, fmt.Errorf("stat %s: %w", target, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", target)
	}

	if opts.Follow {
		return follow(ctx, target, opts.FollowIdle)
	}

	open := func() (io.ReadCloser, error) { return openFile(target) }
	// fail early on unreadable files rather than on first parse
	rc, err := open()
	if err != nil {
		return nil, err
	}
	_ = rc.Close()
	return open, nil
}

// FromBytes returns an Opener over an in-memory log.
func FromBytes(data []byte) Opener {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

// FromString returns an Opener over an in-memory log.
func FromString(s string) Opener {
	return FromBytes([]byte(s))
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	switch {
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return &stackedReader{Reader: dec, closers: []func() error{
			func() error { dec.Close(); return nil },
			f.Close,
		}}, nil

	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return &stackedReader{Reader: gz, closers: []func() error{gz.Close, f.Close}}, nil
	}
	return f, nil
}

// stackedReader closes a decompressor and its underlying file together.
type stackedReader struct {
	io.Reader
	closers []func() error
}

func (s *stackedReader) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openPod(ctx context.Context, ref string, opts Options) (Opener, error) {
	pod, err := k8s.ParsePodRef(ref)
	if err != nil {
		return nil, err
	}
	newClient := opts.KubeClient
	if newClient == nil {
		newClient = k8s.NewClient
	}
	client, err := newClient(pod.Namespace)
	if err != nil {
		return nil, fmt.Errorf("kubernetes client: %w", err)
	}
	rc, err := client.PodLogs(ctx, pod, k8s.LogOptions{Since: opts.Since, Previous: opts.Previous})
	if errors.Is(err, k8s.ErrPodNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read pod logs %s: %w", pod, err)
	}
	return FromBytes(data), nil
}

// follow tails path from the start, collecting lines until ctx is done or
// no line arrives for idle.
func follow(ctx context.Context, path string, idle time.Duration) (Opener, error) {
	t, err := tail.TailFile(path, tail.Config{
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekStart},
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Poll:      true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("tail %s: %w", path, err)
	}
	defer t.Cleanup()

	var idleC <-chan time.Time
	var timer *time.Timer
	if idle > 0 {
		timer = time.NewTimer(idle)
		defer timer.Stop()
		idleC = timer.C
	}

	var buf bytes.Buffer
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-idleC:
			break loop
		case line, ok := <-t.Lines:
			if !ok {
				break loop
			}
			if line.Err != nil {
				continue
			}
			buf.WriteString(line.Text)
			buf.WriteByte('\n')
			if timer != nil {
				timer.Reset(idle)
			}
		}
	}
	_ = t.Stop()
	return FromBytes(buf.Bytes()), nil
}
