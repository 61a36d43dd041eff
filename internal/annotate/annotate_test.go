package annotate

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/csheth/studydesk/internal/document"
	"github.com/csheth/studydesk/internal/protocol"
)

type fakeRepo struct {
	mu        sync.Mutex
	doc       document.Document
	updates   []document.Content
	updateErr error
}

func (f *fakeRepo) GetDocument(_ context.Context, id string) (document.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.doc.ID {
		return document.Document{}, errors.New("not found")
	}
	return document.Document{ID: f.doc.ID, Content: f.doc.Content.Clone()}, nil
}

func (f *fakeRepo) UpdateDocument(_ context.Context, id string, content document.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.doc.Content = content.Clone()
	f.updates = append(f.updates, content.Clone())
	return nil
}

func newRepo() *fakeRepo {
	content := document.FromTexts("one", "two")
	content.AppendAnnotation(0, "known")
	return &fakeRepo{doc: document.Document{ID: "doc-1", Content: content}}
}

func TestFilterDropsKnownAndRepeats(t *testing.T) {
	t.Parallel()

	content := document.FromTexts("a", "b")
	content.AppendAnnotation(0, "old")
	got := Filter(content.HasAnnotation, []Item{
		{PageIndex: 0, Text: "old"},
		{PageIndex: 0, Text: "new"},
		{PageIndex: 1, Text: "old"},
		{PageIndex: 0, Text: "new"},
		{PageIndex: 1, Text: "  "},
	})
	want := []Item{{PageIndex: 0, Text: "new"}, {PageIndex: 1, Text: "old"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Filter: got %v want %v", got, want)
	}
}

func TestFromCommandsKeepsOrder(t *testing.T) {
	t.Parallel()

	got := FromCommands([]protocol.Annotate{{PageIndex: 2, Text: "b"}, {PageIndex: 0, Text: "a"}})
	want := []Item{{PageIndex: 2, Text: "b"}, {PageIndex: 0, Text: "a"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FromCommands: got %v want %v", got, want)
	}
}

func TestCommitReplacesWholeContent(t *testing.T) {
	t.Parallel()

	repo := newRepo()
	svc := NewService(repo, "doc-1", Options{})
	defer svc.Close()

	changed, err := svc.Commit(context.Background(), Item{PageIndex: 1, Text: "fresh"})
	if err != nil || !changed {
		t.Fatalf("Commit: changed=%v err=%v", changed, err)
	}
	if len(repo.updates) != 1 {
		t.Fatalf("updates: got %d want 1", len(repo.updates))
	}
	stored := repo.updates[0]
	if got := stored.Annotations(0); !reflect.DeepEqual(got, []string{"known"}) {
		t.Fatalf("page 1 annotations lost: %v", got)
	}
	if got := stored.Annotations(1); !reflect.DeepEqual(got, []string{"fresh"}) {
		t.Fatalf("page 2 annotations: %v", got)
	}

	changed, err = svc.Commit(context.Background(), Item{PageIndex: 1, Text: "fresh"})
	if err != nil || changed {
		t.Fatalf("repeat commit: changed=%v err=%v", changed, err)
	}
	if len(repo.updates) != 1 {
		t.Fatalf("repeat commit wrote again")
	}
}

func TestCommitRejectsOutOfRangePage(t *testing.T) {
	t.Parallel()

	svc := NewService(newRepo(), "doc-1", Options{})
	defer svc.Close()
	if _, err := svc.Commit(context.Background(), Item{PageIndex: 7, Text: "x"}); err == nil {
		t.Fatalf("expected range error")
	}
}

func TestEnqueueCommitsInOrderAndReportsFailures(t *testing.T) {
	t.Parallel()

	repo := newRepo()
	var mu sync.Mutex
	var results []Result
	svc := NewService(repo, "doc-1", Options{Notify: func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}})

	for _, text := range []string{"A", "B", "C"} {
		if err := svc.Enqueue(Item{PageIndex: 0, Text: text}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	svc.Close()

	if got := repo.doc.Content.Annotations(0); !reflect.DeepEqual(got, []string{"known", "A", "B", "C"}) {
		t.Fatalf("stored order: %v", got)
	}
	if len(results) != 3 {
		t.Fatalf("results: got %d want 3", len(results))
	}
	if err := svc.Enqueue(Item{PageIndex: 0, Text: "late"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Enqueue after close: got %v want ErrClosed", err)
	}
}

func TestEnqueueFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	repo := newRepo()
	repo.updateErr = errors.New("disk full")
	var got []Result
	svc := NewService(repo, "doc-1", Options{Notify: func(r Result) { got = append(got, r) }})
	if err := svc.Enqueue(Item{PageIndex: 1, Text: "x"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	svc.Close()
	if len(got) != 1 || got[0].Err == nil {
		t.Fatalf("expected one failed result, got %+v", got)
	}
	if len(repo.updates) != 0 {
		t.Fatalf("failed update should not be recorded")
	}
}

type stalledRepo struct {
	*fakeRepo
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *stalledRepo) GetDocument(ctx context.Context, id string) (document.Document, error) {
	r.once.Do(func() { close(r.started) })
	<-r.release
	return r.fakeRepo.GetDocument(ctx, id)
}

func TestEnqueueDropsWhenQueueIsFull(t *testing.T) {
	t.Parallel()

	repo := &stalledRepo{fakeRepo: newRepo(), started: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(repo, "doc-1", Options{Buffer: 1})

	if err := svc.Enqueue(Item{PageIndex: 0, Text: "A"}); err != nil {
		t.Fatalf("Enqueue A: %v", err)
	}
	<-repo.started
	if err := svc.Enqueue(Item{PageIndex: 0, Text: "B"}); err != nil {
		t.Fatalf("Enqueue B: %v", err)
	}

	result := make(chan error, 1)
	go func() { result <- svc.Enqueue(Item{PageIndex: 0, Text: "C"}) }()
	select {
	case err := <-result:
		if !errors.Is(err, ErrQueueFull) {
			t.Fatalf("Enqueue C: got %v want ErrQueueFull", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked while storage was stalled")
	}

	close(repo.release)
	svc.Close()
	if got := repo.doc.Content.Annotations(0); !reflect.DeepEqual(got, []string{"known", "A", "B"}) {
		t.Fatalf("stored notes: %v", got)
	}
}
