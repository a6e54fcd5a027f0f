// Package autosave debounces document edits and saves the latest content
// once the author pauses typing.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultDelay is the pause after the last edit before a save.
const DefaultDelay = 2 * time.Second

const defaultSaveTimeout = 30 * time.Second

// ErrClosed is returned by Edit after Close.
var ErrClosed = errors.New("autosave: saver closed")

// SaveFunc persists a document's HTML.
type SaveFunc func(ctx context.Context, docID, html string) error

// DraftCache keeps unsaved content locally. drafts.Store implements it.
type DraftCache interface {
	Put(ctx context.Context, docID, content string, at time.Time) error
	Delete(ctx context.Context, docID string) error
}

type pendingEdit struct {
	html  string
	seq   uint64
	timer *time.Timer
}

// Saver schedules one save per document, Delay after its last edit.
type Saver struct {
	save        SaveFunc
	delay       time.Duration
	saveTimeout time.Duration
	drafts      DraftCache
	onError     func(docID string, err error)
	log         *slog.Logger

	// draftMu orders draft writes against the pending map; it is taken
	// before mu.
	draftMu sync.Mutex

	mu      sync.Mutex
	seq     uint64
	pending map[string]*pendingEdit
	closed  bool
	wg      sync.WaitGroup
}

// Option configures a Saver.
type Option func(*Saver)

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) Option {
	return func(s *Saver) { s.delay = d }
}

// WithDrafts records every edit in cache until it is saved.
func WithDrafts(cache DraftCache) Option {
	return func(s *Saver) { s.drafts = cache }
}

// WithErrorHandler is called when a timed save fails. The draft is kept.
func WithErrorHandler(fn func(docID string, err error)) Option {
	return func(s *Saver) { s.onError = fn }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Saver) { s.log = log }
}

// New creates a Saver that persists through save.
func New(save SaveFunc, opts ...Option) *Saver {
	s := &Saver{
		save:        save,
		delay:       DefaultDelay,
		saveTimeout: defaultSaveTimeout,
		log:         slog.Default(),
		pending:     make(map[string]*pendingEdit),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Edit records the latest content of docID and restarts its timer.
func (s *Saver) Edit(docID, html string) error {
	s.draftMu.Lock()
	defer s.draftMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.seq++
	seq := s.seq
	if prev, ok := s.pending[docID]; ok {
		prev.timer.Stop()
	}
	s.pending[docID] = &pendingEdit{
		html:  html,
		seq:   seq,
		timer: time.AfterFunc(s.delay, func() { s.fire(docID, seq) }),
	}
	s.mu.Unlock()

	if s.drafts != nil {
		if err := s.drafts.Put(context.Background(), docID, html, time.Now()); err != nil {
			s.log.Warn("failed to cache draft", "doc_id", docID, "error", err)
		}
	}
	return nil
}

// Pending reports whether docID has an edit that is not saved yet.
func (s *Saver) Pending(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[docID]
	return ok
}

// Flush saves every pending edit now.
func (s *Saver) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := make(map[string]*pendingEdit, len(s.pending))
	for id, p := range s.pending {
		p.timer.Stop()
		batch[id] = p
		delete(s.pending, id)
	}
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for id, p := range batch {
		g.Go(func() error {
			return s.persist(ctx, id, p)
		})
	}
	return g.Wait()
}

// Close stops all timers and waits for saves in progress. Unsaved edits stay
// in the draft cache.
func (s *Saver) Close() {
	s.mu.Lock()
	s.closed = true
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Saver) fire(docID string, seq uint64) {
	s.mu.Lock()
	p, ok := s.pending[docID]
	if !ok || p.seq != seq || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.pending, docID)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()
	if err := s.persist(ctx, docID, p); err != nil && s.onError != nil {
		s.onError(docID, err)
	}
}

func (s *Saver) persist(ctx context.Context, docID string, p *pendingEdit) error {
	if err := s.save(ctx, docID, p.html); err != nil {
		s.log.Warn("autosave failed", "doc_id", docID, "error", err)
		return fmt.Errorf("failed to save %s: %w", docID, err)
	}
	s.log.Debug("autosaved", "doc_id", docID, "bytes", len(p.html))

	if s.drafts == nil {
		return nil
	}
	// an Edit that arrives after the check waits here and writes its draft
	// after the delete
	s.draftMu.Lock()
	defer s.draftMu.Unlock()
	s.mu.Lock()
	_, newer := s.pending[docID]
	s.mu.Unlock()
	if newer {
		return nil
	}
	if err := s.drafts.Delete(ctx, docID); err != nil {
		s.log.Warn("failed to drop saved draft", "doc_id", docID, "error", err)
	}
	return nil
}
