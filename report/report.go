// Package report delivers untranslated lines to the translation server.
//
// Reporter.Report is a translator.ReportFunc: it only enqueues, so it is
// cheap to call with the translator's lock held. Run drains the queue in
// order, batches lines, skips lines that were already submitted, and
// either POSTs each batch as JSON or writes it as JSON lines.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/minios-linux/kclib/submitlog"
	"github.com/minios-linux/kclib/translator"
)

var (
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("reporter closed")
	// ErrQueueFull is returned by Enqueue when the queue has no room.
	ErrQueueFull = errors.New("report queue full")
)

const (
	defaultQueueSize     = 1024
	defaultBatchSize     = 50
	defaultFlushInterval = 5 * time.Second
	defaultMaxRetries    = 3
)

// Line is a submitted untranslated line.
type Line struct {
	Line     string `json:"line"`
	Tag      string `json:"tag"`
	Key      string `json:"key"`
	Checksum uint32 `json:"crc32"`
}

// Batch is the body POSTed to the report endpoint.
type Batch struct {
	Lines []Line `json:"lines"`
}

// Options configures a Reporter.
type Options struct {
	// Endpoint receives batches as JSON POSTs. When empty, lines are
	// written to Out as JSON lines instead.
	Endpoint string
	// Out defaults to os.Stderr.
	Out io.Writer
	// Client defaults to a client with a 30s timeout.
	Client *http.Client
	// Log, when set, suppresses lines it already holds and records
	// delivered ones; it is saved after every delivered batch if it has
	// a path.
	Log *submitlog.Log

	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	MaxRetries    int
	Backoff       time.Duration

	Logger *slog.Logger
}

// Reporter queues and delivers untranslated lines.
type Reporter struct {
	opts  Options
	queue chan Line

	mu     sync.Mutex
	closed bool

	dropped   atomic.Int64
	submitted atomic.Int64
}

// New returns a Reporter. Call Run to start delivering.
func New(opts Options) *Reporter {
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	} else if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Reporter{
		opts:  opts,
		queue: make(chan Line, opts.QueueSize),
	}
}

// Report enqueues a line; it satisfies translator.ReportFunc. Lines that
// cannot be queued are counted in Dropped.
func (r *Reporter) Report(line, tag, key string) {
	if err := r.Enqueue(Line{Line: line, Tag: tag, Key: key}); err != nil {
		r.opts.Logger.Warn("dropping untranslated line", "tag", tag, "key", key, "err", err)
	}
}

// Enqueue queues l without blocking.
func (r *Reporter) Enqueue(l Line) error {
	if l.Checksum == 0 {
		l.Checksum = translator.Checksum(l.Line)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.dropped.Add(1)
		return ErrClosed
	}
	select {
	case r.queue <- l:
		return nil
	default:
		r.dropped.Add(1)
		return ErrQueueFull
	}
}

// Close stops accepting lines. Run delivers what is queued and returns.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
}

// Dropped returns the number of lines that could not be queued, plus those
// still pending when Run's context ended.
func (r *Reporter) Dropped() int64 {
	return r.dropped.Load()
}

// Submitted returns the number of lines delivered.
func (r *Reporter) Submitted() int64 {
	return r.submitted.Load()
}

// Run delivers queued lines until Close is called (returning after the
// final flush) or ctx is done. Lines still batched or queued when ctx ends
// are counted as dropped. Failed batches are logged and skipped; the error
// of the final flush is returned.
//
// Callers that want every queued line delivered on shutdown should give
// Run a context that outlives the work and stop it with Close.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	var batch []Line
	seen := make(map[string]bool)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := r.deliver(ctx, batch)
		batch = nil
		seen = make(map[string]bool)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			if n := len(batch) + len(r.queue); n > 0 {
				r.dropped.Add(int64(n))
				r.opts.Logger.Warn("reporter stopped with undelivered lines", "lines", n)
			}
			return ctx.Err()

		case l, ok := <-r.queue:
			if !ok {
				return flush()
			}
			id := l.Tag + "\x00" + submitlog.Sum(l.Line)
			if seen[id] || (r.opts.Log != nil && r.opts.Log.Has(l.Tag, l.Line)) {
				continue
			}
			seen[id] = true
			batch = append(batch, l)
			if len(batch) >= r.opts.BatchSize {
				if err := flush(); err != nil {
					r.opts.Logger.Error("report delivery failed", "err", err)
				}
			}

		case <-ticker.C:
			if err := flush(); err != nil {
				r.opts.Logger.Error("report delivery failed", "err", err)
			}
		}
	}
}

func (r *Reporter) deliver(ctx context.Context, batch []Line) error {
	var err error
	if r.opts.Endpoint == "" {
		err = r.write(batch)
	} else {
		err = r.post(ctx, batch)
	}
	if err != nil {
		return err
	}

	r.submitted.Add(int64(len(batch)))
	if r.opts.Log == nil {
		return nil
	}
	for _, l := range batch {
		r.opts.Log.Mark(l.Tag, l.Key, l.Line)
	}
	if r.opts.Log.Path() != "" {
		if err := r.opts.Log.Save(); err != nil {
			return fmt.Errorf("saving submit log: %w", err)
		}
	}
	return nil
}

func (r *Reporter) write(batch []Line) error {
	enc := json.NewEncoder(r.opts.Out)
	for _, l := range batch {
		if err := enc.Encode(l); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}
	return nil
}

func (r *Reporter) post(ctx context.Context, batch []Line) error {
	body, err := json.Marshal(Batch{Lines: batch})
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	requestID := uuid.NewString()

	for attempt := 0; attempt <= r.opts.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.Endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Request-ID", requestID)

		resp, err := r.opts.Client.Do(req)
		if err == nil {
			respBody, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				r.opts.Logger.Debug("reading report response", "status", resp.StatusCode, "err", readErr)
			}
			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				r.opts.Logger.Debug("report delivered", "lines", len(batch), "request_id", requestID)
				return nil
			case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
				err = fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
			default:
				return fmt.Errorf("report endpoint returned status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
			}
		}

		if attempt < r.opts.MaxRetries {
			wait := time.Duration(math.Pow(2, float64(attempt))) * r.opts.Backoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		return fmt.Errorf("delivering report: %w", err)
	}

	return fmt.Errorf("delivering report: exhausted all %d retries", r.opts.MaxRetries)
}
