// Package source turns what a user types at import time (a local path, a
// URL or an arXiv id) into a PDF file on disk.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/csheth/studydesk/internal/logger"
)

const defaultHTTPTimeout = 90 * time.Second

// ErrUnresolvable is returned for input that is not a file, URL or arXiv id.
var ErrUnresolvable = errors.New("not a pdf path, url or arxiv id")

// Kind tells where a resolved PDF came from.
type Kind string

const (
	KindFile  Kind = "file"
	KindURL   Kind = "url"
	KindArxiv Kind = "arxiv"
)

// Resolved is a PDF ready to be read from Path.
type Resolved struct {
	Kind     Kind
	Path     string
	Origin   string
	FileName string
	Title    string
	Paper    *Paper
}

// Options configures a Resolver. Zero values pick the public arXiv hosts, a
// user cache directory and a 90s HTTP client.
type Options struct {
	CacheDir   string
	HTTPClient *http.Client
	Log        logger.Logger
	ArxivAPI   string
	ArxivPDF   string
}

// Resolver fetches and caches remote PDFs.
type Resolver struct {
	cache   *downloadCache
	client  *http.Client
	log     logger.Logger
	apiBase string
	pdfBase string
}

// New creates the cache directory and returns a resolver.
func New(opts Options) (*Resolver, error) {
	log := opts.Log
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	cache, err := newDownloadCache(opts.CacheDir, client, log)
	if err != nil {
		return nil, err
	}
	r := &Resolver{
		cache:   cache,
		client:  client,
		log:     log,
		apiBase: strings.TrimSuffix(opts.ArxivAPI, "/"),
		pdfBase: strings.TrimSuffix(opts.ArxivPDF, "/"),
	}
	if r.apiBase == "" {
		r.apiBase = "https://export.arxiv.org"
	}
	if r.pdfBase == "" {
		r.pdfBase = "https://arxiv.org"
	}
	return r, nil
}

// Resolve returns a local PDF for input. Existing files win over the other
// interpretations.
func (r *Resolver) Resolve(ctx context.Context, input string) (Resolved, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Resolved{}, ErrUnresolvable
	}
	local := expandHome(input)
	if info, err := os.Stat(local); err == nil {
		if info.IsDir() {
			return Resolved{}, fmt.Errorf("%s is a directory", local)
		}
		abs, err := filepath.Abs(local)
		if err != nil {
			abs = local
		}
		name := filepath.Base(abs)
		return Resolved{Kind: KindFile, Path: abs, Origin: abs, FileName: name, Title: titleFromName(name)}, nil
	}

	if id := ArxivID(input); id != "" {
		return r.resolveArxiv(ctx, id)
	}
	if u, err := url.Parse(input); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		p, err := r.cache.Fetch(ctx, input)
		if err != nil {
			return Resolved{}, err
		}
		name := path.Base(u.Path)
		if name == "." || name == "/" {
			name = u.Host + ".pdf"
		}
		return Resolved{Kind: KindURL, Path: p, Origin: input, FileName: name, Title: titleFromName(name)}, nil
	}
	return Resolved{}, fmt.Errorf("%q: %w", input, ErrUnresolvable)
}

func (r *Resolver) resolveArxiv(ctx context.Context, id string) (Resolved, error) {
	pdfURL := fmt.Sprintf("%s/pdf/%s.pdf", r.pdfBase, id)
	p, err := r.cache.Fetch(ctx, pdfURL)
	if err != nil {
		return Resolved{}, err
	}
	res := Resolved{Kind: KindArxiv, Path: p, Origin: pdfURL, FileName: sanitizeKey(id) + ".pdf", Title: "arXiv:" + id}
	paper, err := r.fetchPaper(ctx, id)
	if err != nil {
		// Metadata only titles the document.
		r.log.Warn("arxiv metadata for %s: %v", id, err)
		return res, nil
	}
	res.Title = paper.Title
	res.Paper = &paper
	return res, nil
}

func titleFromName(name string) string {
	title := strings.TrimSuffix(name, filepath.Ext(name))
	title = strings.NewReplacer("_", " ", "-", " ").Replace(title)
	title = normalizeWhitespace(title)
	if title == "" {
		return name
	}
	return title
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
