package annotate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/csheth/studydesk/internal/document"
	"github.com/csheth/studydesk/internal/logger"
	"github.com/csheth/studydesk/internal/protocol"
)

var (
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("annotation service closed")
	// ErrQueueFull is returned by Enqueue when the worker is too far behind.
	// The item is dropped, not retried.
	ErrQueueFull = errors.New("annotation commit queue full")
)

// Item is an annotation waiting to be revealed or committed.
type Item struct {
	PageIndex int
	Text      string
}

// FromCommands converts decoded annotate commands into items, keeping order.
func FromCommands(cmds []protocol.Annotate) []Item {
	items := make([]Item, 0, len(cmds))
	for _, cmd := range cmds {
		items = append(items, Item{PageIndex: cmd.PageIndex, Text: cmd.Text})
	}
	return items
}

// Filter keeps the candidates that are new: known reports text already held
// for a page, and repeats inside the batch are dropped after their first
// appearance. Order is preserved.
func Filter(known func(pageIndex int, text string) bool, candidates []Item) []Item {
	var out []Item
	seen := map[Item]bool{}
	for _, item := range candidates {
		if strings.TrimSpace(item.Text) == "" || seen[item] {
			continue
		}
		if known != nil && known(item.PageIndex, item.Text) {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

// Repository is the document storage the service writes through.
type Repository interface {
	GetDocument(ctx context.Context, id string) (document.Document, error)
	UpdateDocument(ctx context.Context, id string, content document.Content) error
}

// Result reports the outcome of one background commit.
type Result struct {
	Item    Item
	Changed bool
	Err     error
}

// Options tunes a Service.
type Options struct {
	Log     logger.Logger
	Notify  func(Result)
	Timeout time.Duration
	Buffer  int
}

// Service commits revealed annotations for a single document. Commits run on
// one worker goroutine, so they reach storage in the order they were queued.
type Service struct {
	repo    Repository
	docID   string
	log     logger.Logger
	notify  func(Result)
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	queue  chan Item
	done   chan struct{}
}

// NewService starts the commit worker for docID.
func NewService(repo Repository, docID string, opts Options) *Service {
	if opts.Log == nil {
		opts.Log = logger.NewNoOpLogger()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	s := &Service{
		repo:    repo,
		docID:   docID,
		log:     opts.Log,
		notify:  opts.Notify,
		timeout: opts.Timeout,
		queue:   make(chan Item, opts.Buffer),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// DocumentID names the document the service writes to.
func (s *Service) DocumentID() string {
	return s.docID
}

// Filter drops candidates already stored on their page in content.
func (s *Service) Filter(content document.Content, candidates []Item) []Item {
	return Filter(content.HasAnnotation, candidates)
}

// Commit appends item to the stored document and replaces its whole content.
// It reports false without writing when the annotation is already stored.
func (s *Service) Commit(ctx context.Context, item Item) (bool, error) {
	doc, err := s.repo.GetDocument(ctx, s.docID)
	if err != nil {
		return false, fmt.Errorf("load document %s: %w", s.docID, err)
	}
	content := doc.Content.Clone()
	if item.PageIndex < 0 || item.PageIndex >= content.PageCount() {
		return false, fmt.Errorf("annotation page %d out of range (document has %d pages)", item.PageIndex+1, content.PageCount())
	}
	if !content.AppendAnnotation(item.PageIndex, item.Text) {
		return false, nil
	}
	if err := s.repo.UpdateDocument(ctx, s.docID, content); err != nil {
		return false, fmt.Errorf("update document %s: %w", s.docID, err)
	}
	return true, nil
}

// Enqueue schedules a background commit. It never blocks: when the queue is
// full the item is dropped and ErrQueueFull returned.
func (s *Service) Enqueue(item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.queue <- item:
		return nil
	default:
		s.log.Warn("annotation commit queue full, dropping note for page %d", item.PageIndex+1)
		return ErrQueueFull
	}
}

// Close stops accepting items and waits for queued commits to finish.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done
}

func (s *Service) run() {
	defer close(s.done)
	for item := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		changed, err := s.Commit(ctx, item)
		cancel()
		if err != nil {
			// Not retried: the annotation stays visible for this session only.
			s.log.Error("annotation commit failed for page %d: %v", item.PageIndex+1, err)
		} else if changed {
			s.log.Debug("annotation committed to page %d", item.PageIndex+1)
		}
		if s.notify != nil {
			s.notify(Result{Item: item, Changed: changed, Err: err})
		}
	}
}
