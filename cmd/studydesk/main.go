package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/studydesk/internal/config"
	"github.com/csheth/studydesk/internal/extract"
	"github.com/csheth/studydesk/internal/library"
	"github.com/csheth/studydesk/internal/llm"
	"github.com/csheth/studydesk/internal/logger"
	"github.com/csheth/studydesk/internal/source"
	"github.com/csheth/studydesk/internal/store"
	"github.com/csheth/studydesk/internal/tui"
	"github.com/csheth/studydesk/internal/tutor"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default ~/.studydesk/config.yaml)")
	storeDSN := flag.String("store", "", "library store: memory:, file:<path>, sqlite:<path> or postgres://...")
	mode := flag.String("mode", string(store.SessionTutor), "study mode for a new session: tutor, flashcards or summary")
	title := flag.String("title", "", "document title (defaults to arXiv metadata or the file name)")
	sessionID := flag.String("session", "", "reopen an existing session by id")
	deferred := flag.Bool("deferred", false, "store the PDF now and parse its pages when the session opens")
	list := flag.Bool("list", false, "list documents and sessions, then exit")
	deleteID := flag.String("delete", "", "delete a document by id, then exit")
	force := flag.Bool("force", false, "with -delete, also delete the document's sessions")
	noAltScreen := flag.Bool("no-alt-screen", false, "disable the alternate screen buffer")
	llmProvider := flag.String("llm-provider", "", "ollama or openai (default from config)")
	llmModel := flag.String("llm-model", "", "override the model name")
	llmEndpoint := flag.String("llm-endpoint", "", "custom Ollama host or OpenAI base URL")
	logLevel := flag.String("log-level", "", "debug, info, warn, error or off")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: studydesk [flags] <pdf path | url | arXiv id>\n       studydesk [flags] -session <id>\n       studydesk -list\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("failed to load config:", err)
		os.Exit(1)
	}
	applyFlag(&cfg.Store, *storeDSN)
	applyFlag(&cfg.LLM.Provider, *llmProvider)
	applyFlag(&cfg.LLM.Model, *llmModel)
	applyFlag(&cfg.LLM.Endpoint, *llmEndpoint)
	applyFlag(&cfg.Log.Level, *logLevel)
	if *noAltScreen {
		cfg.AltScreen = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Println("invalid config:", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Logger())
	if err != nil {
		fmt.Println("failed to open log:", err)
		os.Exit(1)
	}
	defer logger.Close(log)

	if err := run(cfg, log, options{
		input:     flag.Arg(0),
		mode:      store.SessionType(*mode),
		title:     *title,
		sessionID: *sessionID,
		deferred:  *deferred,
		list:      *list,
		deleteID:  *deleteID,
		force:     *force,
	}); err != nil {
		fmt.Println("studydesk:", err)
		logger.Close(log)
		os.Exit(1)
	}
}

type options struct {
	input     string
	mode      store.SessionType
	title     string
	sessionID string
	deferred  bool
	list      bool
	deleteID  string
	force     bool
}

func run(cfg config.Config, log logger.Logger, opts options) error {
	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	resolver, err := source.New(source.Options{CacheDir: cfg.CacheDir, Log: log.With("source")})
	if err != nil {
		return err
	}
	lib := library.New(st, resolver, extract.New(log.With("extract")), log.With("library"))

	switch {
	case opts.list:
		return listLibrary(ctx, lib, os.Stdout)
	case opts.deleteID != "":
		if err := lib.Delete(ctx, opts.deleteID, opts.force); err != nil {
			return err
		}
		fmt.Println("deleted", opts.deleteID)
		return nil
	}

	opened, err := openSession(ctx, lib, opts)
	if err != nil {
		return err
	}

	var tutorSvc tui.Tutor
	modelName := ""
	client, err := llm.New(llm.Config{
		Provider: llm.Provider(cfg.LLM.Provider),
		Model:    cfg.LLM.Model,
		Endpoint: cfg.LLM.Endpoint,
		APIKey:   cfg.LLM.APIKey,
		Log:      log.With("llm"),
	})
	if err != nil {
		fmt.Println("LLM disabled:", err)
		log.Warn("llm disabled: %v", err)
	} else {
		tutorSvc = tutor.New(st, client, tutor.Options{Log: log.With("tutor")})
		modelName = client.Name()
	}

	programOpts := []tea.ProgramOption{}
	if cfg.AltScreen {
		programOpts = append(programOpts, tea.WithAltScreen())
	}
	program := tea.NewProgram(
		tui.New(tui.Config{
			Opened:     opened,
			Tutor:      tutorSvc,
			Sessions:   lib,
			Repository: st,
			Log:        log.With("tui"),
			ModelName:  modelName,
		}),
		programOpts...,
	)
	final, err := program.Run()
	if closer, ok := final.(interface{ Close() }); ok {
		closer.Close()
	}
	if err != nil {
		return fmt.Errorf("program error: %w", err)
	}
	return nil
}

func openSession(ctx context.Context, lib *library.Library, opts options) (library.Opened, error) {
	if opts.sessionID != "" {
		return lib.Open(ctx, opts.sessionID)
	}
	if opts.input == "" {
		flag.Usage()
		return library.Opened{}, fmt.Errorf("a PDF, URL or arXiv id is required")
	}
	if !opts.mode.Valid() {
		return library.Opened{}, fmt.Errorf("unknown mode %q", opts.mode)
	}
	opened, err := lib.Import(ctx, opts.input, library.ImportOptions{
		Title:    opts.title,
		Mode:     opts.mode,
		Deferred: opts.deferred,
	})
	if err != nil {
		return library.Opened{}, fmt.Errorf("import %s: %w", opts.input, err)
	}
	if opts.deferred {
		// Parse now; the document stays stored even if this fails.
		return lib.Open(ctx, opened.Session.ID)
	}
	return opened, nil
}

func listLibrary(ctx context.Context, lib *library.Library, out io.Writer) error {
	docs, err := lib.Documents(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintln(out, "library is empty")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, doc := range docs {
		fmt.Fprintf(w, "%s\t%s\t%d pages\t%s\n", doc.ID, doc.Title, doc.Metadata.PageCount, doc.SourcePath)
		sessions, err := lib.Sessions(ctx, doc.ID)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", s.ID, s.Type, s.Title, s.UpdatedAt.Format("2006-01-02 15:04"))
		}
	}
	return w.Flush()
}

func applyFlag(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
