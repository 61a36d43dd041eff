package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestArxivID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"abs url", "https://arxiv.org/abs/2101.00001", "2101.00001"},
		{"pdf url", "https://arxiv.org/pdf/2205.12345.pdf", "2205.12345"},
		{"versioned url", "https://arxiv.org/abs/2205.12345v3", "2205.12345v3"},
		{"old style url", "https://arxiv.org/abs/hep-th/9901001", "hep-th/9901001"},
		{"prefixed", "arXiv:2101.00001", "2101.00001"},
		{"bare", "2308.01234v2", "2308.01234v2"},
		{"bare pdf suffix", "2308.01234v2.pdf", "2308.01234v2"},
		{"plain word", "notes", ""},
		{"other host", "https://example.com/foo", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ArxivID(tt.in); got != tt.want {
				t.Fatalf("ArxivID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

const atomResponse = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2101.00001v1</id>
    <title>Attention   Is
      All You Need</title>
    <summary> We propose a transformer. </summary>
    <author><name>Ada Lovelace</name></author>
    <author><name> Alan Turing </name></author>
  </entry>
</feed>`

func newArxivServer(t *testing.T, feed string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/pdf/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.4\nbody"))
	})
	mux.HandleFunc("/api/query", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id_list") == "" {
			http.Error(w, "missing id", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(feed))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestResolver(t *testing.T, server *httptest.Server) *Resolver {
	t.Helper()
	r, err := New(Options{
		CacheDir:   t.TempDir(),
		HTTPClient: server.Client(),
		ArxivAPI:   server.URL,
		ArxivPDF:   server.URL + "/",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestResolveArxivFetchesPDFAndTitle(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newArxivServer(t, atomResponse))
	res, err := r.Resolve(context.Background(), "arXiv:2101.00001")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Kind != KindArxiv {
		t.Fatalf("kind = %s", res.Kind)
	}
	if res.Title != "Attention Is All You Need" {
		t.Fatalf("title = %q", res.Title)
	}
	if res.Paper == nil || len(res.Paper.Authors) != 2 || res.Paper.Authors[1] != "Alan Turing" {
		t.Fatalf("paper = %#v", res.Paper)
	}
	if res.FileName != "2101.00001.pdf" {
		t.Fatalf("file name = %q", res.FileName)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil || !strings.HasPrefix(string(data), "%PDF-") {
		t.Fatalf("cached pdf unreadable: %v %q", err, data)
	}
}

func TestResolveArxivWithoutMetadataKeepsID(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newArxivServer(t, `<feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
	res, err := r.Resolve(context.Background(), "2101.00001")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Title != "arXiv:2101.00001" || res.Paper != nil {
		t.Fatalf("unexpected fallback %#v", res)
	}
}

func TestResolveLocalFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "linear_algebra-notes.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err := New(Options{CacheDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := r.Resolve(context.Background(), path)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Kind != KindFile || res.Path != path {
		t.Fatalf("unexpected %#v", res)
	}
	if res.Title != "linear algebra notes" {
		t.Fatalf("title = %q", res.Title)
	}
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	server := newArxivServer(t, atomResponse)
	r := newTestResolver(t, server)
	res, err := r.Resolve(context.Background(), server.URL+"/pdf/lecture.pdf")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Kind != KindURL || res.FileName != "lecture.pdf" {
		t.Fatalf("unexpected %#v", res)
	}
}

func TestResolveRejectsUnknownInput(t *testing.T) {
	t.Parallel()

	r, err := New(Options{CacheDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, in := range []string{"", "   ", "just some words", "ftp://host/file.pdf"} {
		if _, err := r.Resolve(context.Background(), in); !errors.Is(err, ErrUnresolvable) {
			t.Fatalf("Resolve(%q) err = %v, want ErrUnresolvable", in, err)
		}
	}
	if _, err := r.Resolve(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected error for a directory")
	}
}
