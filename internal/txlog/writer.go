// Package txlog persists per-run transaction logs as JSON arrays on disk.
package txlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/txbatch7000-backend/internal/model"
)

const (
	defaultFlushSize     = 16
	defaultFlushInterval = 2 * time.Second
	defaultFlushRPS      = 2
)

// Path returns the log file path for a run started at the given time.
func Path(dir string, started time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%d.txlog.json", started.Unix()))
}

// Writer buffers settled submission entries and flushes them to a single JSON
// array file, either by size or interval, so a crashed run still leaves a
// valid partial log. The final flush on Stop makes the file complete.
type Writer struct {
	path          string
	logger        *zap.Logger
	entriesCh     chan model.SubmissionResult
	flushSize     int
	flushInterval time.Duration
	rl            ratelimit.Limiter

	wg   sync.WaitGroup
	stop chan struct{}

	mu       sync.Mutex
	writeErr error
}

// NewWriter creates the log directory if absent and prepares a writer for a
// run started at the given time.
func NewWriter(dir string, started time.Time, logger *zap.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &Writer{
		path:          Path(dir, started),
		logger:        logger,
		entriesCh:     make(chan model.SubmissionResult, defaultFlushSize*2),
		flushSize:     defaultFlushSize,
		flushInterval: defaultFlushInterval,
		rl:            ratelimit.New(defaultFlushRPS),
		stop:          make(chan struct{}),
	}, nil
}

// Start begins the background flushing loop.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop drains pending entries, writes the final log file and returns the last
// write error, if any.
func (w *Writer) Stop() error {
	close(w.stop)
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeErr
}

// Append queues one settled entry, respecting context cancellation.
func (w *Writer) Append(ctx context.Context, entry model.SubmissionResult) error {
	select {
	case <-w.stop:
		return context.Canceled
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case w.entriesCh <- entry:
		return nil
	}
}

func (w *Writer) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	entries := make([]model.SubmissionResult, 0, w.flushSize)
	dirty := false

	flush := func() {
		if !dirty {
			return
		}
		w.rl.Take()
		if err := w.write(entries); err != nil {
			w.logger.Error("transaction log flush failed", zap.Error(err))
		} else {
			w.logger.Debug("transaction log flushed", zap.Int("entries", len(entries)))
			dirty = false
		}
	}

	finish := func() {
		for {
			select {
			case entry := <-w.entriesCh:
				entries = append(entries, entry)
				dirty = true
			default:
				// The final write always runs so even an empty run leaves a
				// complete log file behind.
				if err := w.write(entries); err != nil {
					w.logger.Error("final transaction log write failed", zap.Error(err))
				}
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			finish()
			return

		case <-w.stop:
			finish()
			return

		case entry := <-w.entriesCh:
			entries = append(entries, entry)
			dirty = true
			if len(entries)%w.flushSize == 0 {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

func (w *Writer) write(entries []model.SubmissionResult) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		err = fmt.Errorf("marshal transaction log: %w", err)
		w.setWriteErr(err)
		return err
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		err = fmt.Errorf("write transaction log: %w", err)
		w.setWriteErr(err)
		return err
	}
	if err := os.Rename(tmp, w.path); err != nil {
		err = fmt.Errorf("replace transaction log: %w", err)
		w.setWriteErr(err)
		return err
	}
	w.setWriteErr(nil)
	return nil
}

func (w *Writer) setWriteErr(err error) {
	w.mu.Lock()
	w.writeErr = err
	w.mu.Unlock()
}

// Read loads a transaction log written by a Writer.
func Read(path string) ([]model.SubmissionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transaction log: %w", err)
	}
	var entries []model.SubmissionResult
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse transaction log: %w", err)
	}
	return entries, nil
}
