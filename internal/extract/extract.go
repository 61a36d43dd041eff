package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/csheth/studydesk/internal/document"
	"github.com/csheth/studydesk/internal/logger"
)

var (
	// ErrNotPDF is returned for input without a PDF header.
	ErrNotPDF = errors.New("not a pdf file")
	// ErrNoPages is returned for a PDF whose page tree is empty.
	ErrNoPages = errors.New("pdf has no pages")
	// ErrNoExtractableText is returned when no page yields any text,
	// typically a scanned document.
	ErrNoExtractableText = errors.New("no extractable text in pdf")
)

// Letter size, used when neither library can report a page box.
const (
	defaultWidth  = 612.0
	defaultHeight = 792.0
)

// gapFactor is the horizontal gap, relative to font size, treated as a word break.
const gapFactor = 0.15

// Extractor turns PDF bytes into page-chunked document content.
type Extractor struct {
	log  logger.Logger
	conf *model.Configuration
}

// New returns an extractor logging through log.
func New(log logger.Logger) *Extractor {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Extractor{log: log, conf: conf}
}

// ParseFile reads path and extracts it.
func (e *Extractor) ParseFile(ctx context.Context, path string) (document.Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return document.Content{}, fmt.Errorf("read pdf: %w", err)
	}
	return e.Parse(ctx, data)
}

// Parse extracts every page. Any failure is returned as an error; a partial
// result is never produced.
func (e *Extractor) Parse(ctx context.Context, data []byte) (content document.Content, err error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return document.Content{}, ErrNotPDF
	}
	defer func() {
		// The text reader panics on some malformed streams.
		if r := recover(); r != nil {
			content = document.Content{}
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return document.Content{}, fmt.Errorf("open pdf: %w", err)
	}
	total := reader.NumPage()
	if total == 0 {
		return document.Content{}, ErrNoPages
	}
	dims := e.pageDims(data, total)

	pages := make([]document.Page, 0, total)
	found := false
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return document.Content{}, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			return document.Content{}, fmt.Errorf("page %d missing from page tree", i)
		}
		text := pageText(page)
		if text != "" {
			found = true
		}
		width, height := dims[i-1][0], dims[i-1][1]
		if width == 0 || height == 0 {
			width, height = mediaBox(page)
		}
		pages = append(pages, document.Page{PageNumber: i, Width: width, Height: height, Text: text})
	}
	if !found {
		return document.Content{}, ErrNoExtractableText
	}
	e.log.Info("extracted %d pages", total)
	return document.Content{Pages: pages, TotalPages: total}, nil
}

// pageDims asks pdfcpu for page sizes. A failure is logged and leaves zeros
// for the media box fallback.
func (e *Extractor) pageDims(data []byte, total int) [][2]float64 {
	out := make([][2]float64, total)
	dims, err := api.PageDims(bytes.NewReader(data), e.conf)
	if err != nil {
		e.log.Debug("pdfcpu page dims unavailable: %v", err)
		return out
	}
	for i := 0; i < total && i < len(dims); i++ {
		out[i] = [2]float64{dims[i].Width, dims[i].Height}
	}
	return out
}

func mediaBox(page pdf.Page) (float64, float64) {
	box := page.V.Key("MediaBox")
	for parent := page.V.Key("Parent"); box.IsNull() && !parent.IsNull(); parent = parent.Key("Parent") {
		box = parent.Key("MediaBox")
	}
	if box.Len() != 4 {
		return defaultWidth, defaultHeight
	}
	w := math.Abs(box.Index(2).Float64() - box.Index(0).Float64())
	h := math.Abs(box.Index(3).Float64() - box.Index(1).Float64())
	if w == 0 || h == 0 {
		return defaultWidth, defaultHeight
	}
	return w, h
}

// pageText groups glyph runs into lines by baseline, orders lines top to
// bottom and runs left to right, inserting a space at visible gaps.
func pageText(page pdf.Page) string {
	content := page.Content()
	if len(content.Text) == 0 {
		return ""
	}
	lines := map[int][]pdf.Text{}
	for _, t := range content.Text {
		y := int(math.Floor(t.Y))
		lines[y] = append(lines[y], t)
	}
	ys := make([]int, 0, len(lines))
	for y := range lines {
		ys = append(ys, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ys)))

	out := make([]string, 0, len(ys))
	for _, y := range ys {
		if line := joinRuns(lines[y]); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func joinRuns(runs []pdf.Text) string {
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].X < runs[j].X })
	var b strings.Builder
	end := math.Inf(-1)
	for _, r := range runs {
		if b.Len() > 0 && r.X-end > gapFactor*r.FontSize {
			b.WriteByte(' ')
		}
		b.WriteString(r.S)
		end = r.X + r.W
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
