package extract_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/csheth/studydesk/internal/extract"
	"github.com/csheth/studydesk/internal/extract/extracttest"
	"github.com/csheth/studydesk/internal/logger"
)

var _ = Describe("Extractor", func() {
	var (
		ex  *extract.Extractor
		ctx context.Context
	)

	BeforeEach(func() {
		ex = extract.New(logger.New(GinkgoWriter, logger.DebugLevel))
		ctx = context.Background()
	})

	Context("with a text PDF", func() {
		It("returns one page per PDF page in order", func() {
			data := extracttest.BuildPDF(
				extracttest.Letter("Hello world", "second line"),
				extracttest.Letter("Page two"),
			)
			content, err := ex.Parse(ctx, data)
			Expect(err).NotTo(HaveOccurred())
			Expect(content.TotalPages).To(Equal(2))
			Expect(content.NeedsClientParsing).To(BeFalse())
			Expect(content.Pages).To(HaveLen(2))
			Expect(content.Pages[0].PageNumber).To(Equal(1))
			Expect(content.Pages[0].Text).To(Equal("Hello world\nsecond line"))
			Expect(content.Pages[1].PageNumber).To(Equal(2))
			Expect(content.Pages[1].Text).To(Equal("Page two"))
			Expect(content.Validate()).To(Succeed())
		})

		It("reports page dimensions", func() {
			data := extracttest.BuildPDF(extracttest.Page{Width: 595, Height: 842, Lines: []string{"A4"}})
			content, err := ex.Parse(ctx, data)
			Expect(err).NotTo(HaveOccurred())
			Expect(content.Pages[0].Width).To(BeNumerically("~", 595, 0.5))
			Expect(content.Pages[0].Height).To(BeNumerically("~", 842, 0.5))
		})

		It("keeps escaped characters", func() {
			data := extracttest.BuildPDF(extracttest.Letter(`f(x) = a\b`))
			content, err := ex.Parse(ctx, data)
			Expect(err).NotTo(HaveOccurred())
			Expect(content.Pages[0].Text).To(Equal(`f(x) = a\b`))
		})

		It("reads from a file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "paper.pdf")
			Expect(os.WriteFile(path, extracttest.BuildPDF(extracttest.Letter("on disk")), 0o644)).To(Succeed())
			content, err := ex.ParseFile(ctx, path)
			Expect(err).NotTo(HaveOccurred())
			Expect(content.PageText(0)).To(Equal("on disk"))
		})
	})

	Context("with unusable input", func() {
		It("rejects bytes without a PDF header", func() {
			_, err := ex.Parse(ctx, []byte("hello"))
			Expect(err).To(MatchError(extract.ErrNotPDF))
		})

		It("reports a PDF with no text", func() {
			data := extracttest.BuildPDF(extracttest.Letter(), extracttest.Letter())
			_, err := ex.Parse(ctx, data)
			Expect(err).To(MatchError(extract.ErrNoExtractableText))
		})

		It("fails on a truncated file instead of returning partial pages", func() {
			data := extracttest.BuildPDF(extracttest.Letter("cut short"))
			_, err := ex.Parse(ctx, data[:len(data)/2])
			Expect(err).To(HaveOccurred())
		})

		It("stops when the context is cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := ex.Parse(cancelled, extracttest.BuildPDF(extracttest.Letter("x")))
			Expect(err).To(MatchError(context.Canceled))
		})

		It("returns an error for a missing file", func() {
			_, err := ex.ParseFile(ctx, filepath.Join(GinkgoT().TempDir(), "nope.pdf"))
			Expect(err).To(HaveOccurred())
		})
	})
})
