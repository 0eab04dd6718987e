package lsp

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gotodef/pkg/config"
	"github.com/walteh/gotodef/pkg/editor"
	"github.com/walteh/gotodef/pkg/finder"
	"github.com/walteh/gotodef/pkg/introspect"
	"github.com/walteh/gotodef/pkg/jumper"
	"github.com/walteh/gotodef/pkg/metrics"
	"github.com/walteh/gotodef/pkg/position"
	"github.com/walteh/gotodef/pkg/workspace"
)

var ErrShutdown = errors.Base("server is shutting down")

type Options struct {
	// Settings defaults to config.Default().
	Settings *config.Settings
	Fs       afero.Fs
	// Workspace is the search root until the client names one.
	Workspace string
	Executor  introspect.Executor
	Metrics   *metrics.Metrics
	Version   string
	// Watch drops documents loaded from disk when they change.
	Watch bool
}

type Server struct {
	id       string
	settings *config.Settings
	fs       afero.Fs
	store    *workspace.Store
	jumper   *jumper.Jumper
	metrics  *metrics.Metrics
	version  string
	watch    bool

	mu        sync.Mutex
	modifier  editor.KeyModifier
	workspace string
	finder    *finder.DefaultFinder
	shutdown  bool
	instance  *jrpc2.Server
}

func NewServer(ctx context.Context, opts Options) (*Server, error) {
	settings := opts.Settings
	if settings == nil {
		s, err := config.Default().Resolve()
		if err != nil {
			return nil, err
		}
		settings = s
	}
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewIsolated()
	}

	s := &Server{
		id:       xid.New().String(),
		settings: settings,
		fs:       fsys,
		store:    workspace.New(fsys, settings.DefaultLanguage),
		metrics:  m,
		version:  opts.Version,
		watch:    opts.Watch,
		modifier: settings.Modifier,
	}
	s.setWorkspace(opts.Workspace)

	s.jumper = jumper.New(jumper.Options{
		Metrics:     m,
		Executor:    opts.Executor,
		Timeout:     settings.Introspection.Timeout,
		StalePolicy: settings.Introspection.StalePolicy,
		Opener:      s,
		Loader: func(ctx context.Context, path string) (editor.Document, error) {
			return s.store.Get(ctx, path)
		},
	})
	s.store.OnInvalidate = s.jumper.Forget

	zerolog.Ctx(ctx).Debug().Str("server_id", s.id).Str("modifier", string(s.modifier)).Msg("created server")
	return s, nil
}

func (s *Server) setWorkspace(root string) {
	f := finder.NewDefaultFinder(s.fs, root, s.settings.SearchPaths)
	f.Probed = s.metrics.CandidatesProbed.Inc

	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspace = root
	s.finder = f
}

// Find implements finder.Opener over the current workspace.
func (s *Server) Find(ctx context.Context, dir string, candidates []string) (string, error) {
	s.mu.Lock()
	f := s.finder
	s.mu.Unlock()
	return f.Find(ctx, dir, candidates)
}

func (s *Server) Modifier() editor.KeyModifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modifier
}

func (s *Server) Store() *workspace.Store {
	return s.store
}

func (s *Server) Jumper() *jumper.Jumper {
	return s.jumper
}

func (s *Server) Handlers() handler.Map {
	return handler.Map{
		"initialize":              createHandler(s.Initialize),
		"initialized":             createEmptyHandler(s.Initialized),
		"shutdown":                createEmptyHandler(s.Shutdown),
		"exit":                    createEmptyHandler(s.Exit),
		"$/cancelRequest":         createEmptyHandler(func(context.Context) error { return nil }),
		"textDocument/didOpen":    createEmptyResultHandler(s.DidOpen),
		"textDocument/didChange":  createEmptyResultHandler(s.DidChange),
		"textDocument/didClose":   createEmptyResultHandler(s.DidClose),
		"textDocument/definition": createHandler(s.Definition),
		"gotodef/jump":            createHandler(s.Jump),
		"gotodef/jumpBack":        createHandler(s.JumpBack),
	}
}

// BuildServerInstance creates the jrpc2 server. ctx is the base context of
// every request; its logger is used by the handlers.
func (s *Server) BuildServerInstance(ctx context.Context, opts *jrpc2.ServerOptions) *jrpc2.Server {
	if opts == nil {
		opts = &jrpc2.ServerOptions{}
	}
	opts.AllowPush = true
	opts.NewContext = func() context.Context {
		return ctx
	}

	srv := jrpc2.NewServer(s.Handlers(), opts)

	s.mu.Lock()
	s.instance = srv
	s.mu.Unlock()

	return srv
}

// StartAndWait serves LSP framed messages on r and w until the client exits.
func StartAndWait(srv *jrpc2.Server, r io.Reader, w io.WriteCloser) error {
	srv.Start(channel.LSP(r, w))
	if err := srv.Wait(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, jrpc2.ErrConnClosed) {
		return errors.Errorf("serving: %w", err)
	}
	return nil
}

func (s *Server) Initialize(ctx context.Context, params *InitializeParams) (*InitializeResult, error) {
	logger := zerolog.Ctx(ctx)

	if params.RootURI != "" {
		root := workspace.NormalizeURI(params.RootURI)
		s.setWorkspace(root)
		logger.Debug().Str("workspace", root).Msg("workspace root")

		if s.watch {
			if err := s.store.Watch(context.WithoutCancel(ctx), root); err != nil {
				logger.Warn().Err(err).Msg("file watching disabled")
			}
		}
	}

	if len(params.InitializationOptions) > 0 {
		var opts InitializationOptions
		if err := json.Unmarshal(params.InitializationOptions, &opts); err != nil {
			logger.Warn().Err(err).Msg("ignoring initialization options")
		} else if opts.ModifierKey != "" {
			m, err := editor.ParseKeyModifier(opts.ModifierKey)
			if err != nil {
				logger.Warn().Err(err).Msg("keeping configured modifier key")
			} else {
				s.mu.Lock()
				s.modifier = m
				s.mu.Unlock()
			}
		}
	}

	return &InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: TextDocumentSyncOptions{
				OpenClose: true,
				Change:    SyncIncremental,
			},
			DefinitionProvider: true,
			Experimental: &ExperimentalOptions{
				Jump:        true,
				JumpBack:    true,
				ModifierKey: string(s.Modifier()),
			},
		},
		ServerInfo: &ServerInfo{Name: "gotodef", Version: s.version},
	}, nil
}

func (s *Server) Initialized(ctx context.Context) error {
	zerolog.Ctx(ctx).Info().Str("server_id", s.id).Msg("client initialized")
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	if err := s.store.StopWatching(); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("stopping file watcher")
	}
	return nil
}

func (s *Server) Exit(ctx context.Context) error {
	s.mu.Lock()
	srv := s.instance
	s.mu.Unlock()
	if srv != nil {
		// Stop waits for handlers, this one included
		go srv.Stop()
	}
	return nil
}

func (s *Server) closing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Server) DidOpen(ctx context.Context, params *DidOpenTextDocumentParams) error {
	doc, err := s.store.Open(ctx, params.TextDocument.URI, params.TextDocument.LanguageID, params.TextDocument.Text)
	if err != nil {
		return errors.Errorf("opening %s: %w", params.TextDocument.URI, err)
	}
	zerolog.Ctx(ctx).Debug().Str("uri", params.TextDocument.URI).Int("cells", len(doc.Cells())).Msg("document opened")
	return nil
}

func (s *Server) DidChange(ctx context.Context, params *DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI
	doc, ok := s.store.GetNoFallback(uri)
	if !ok {
		return errors.Errorf("document not found: %s", uri)
	}
	buf := editor.Cell(doc, params.Cell)
	if buf == nil {
		return errors.Errorf("document %s has no cell %d", uri, params.Cell)
	}

	content := buf.Source()
	for _, change := range params.ContentChanges {
		if change.Range == nil {
			content = change.Text
			continue
		}
		content = replaceContentFromRange(ctx, content, *change.Range, change.Text)
	}

	_, err := s.store.Update(ctx, uri, params.Cell, content)
	return err
}

func replaceContentFromRange(ctx context.Context, content string, rng position.Range, text string) string {
	m := position.NewMapper(content, position.UTF16)
	start := m.PlaceToOffset(rng.Start)
	end := m.PlaceToOffset(rng.End)
	if end < start {
		start, end = end, start
	}
	zerolog.Ctx(ctx).Trace().Msgf("replacing content from %s to %s with %q", rng.Start, rng.End, text)
	return content[:start] + text + content[end:]
}

func (s *Server) DidClose(ctx context.Context, params *DidCloseTextDocumentParams) error {
	key := workspace.NormalizeURI(params.TextDocument.URI)
	s.store.Close(key)
	s.jumper.Forget(key)
	return nil
}

// cell finds an open or on-disk document and one of its cells.
func (s *Server) cell(ctx context.Context, uri string, i int) (editor.Document, *editor.Buffer, error) {
	if s.closing() {
		return nil, nil, ErrShutdown
	}
	doc, err := s.store.Get(ctx, uri)
	if err != nil {
		return nil, nil, err
	}
	buf := editor.Cell(doc, i)
	if buf == nil {
		return nil, nil, errors.Errorf("document %s has no cell %d", uri, i)
	}
	return doc, buf, nil
}

// Definition resolves the token at the cursor. It answers null when nothing
// can be resolved.
func (s *Server) Definition(ctx context.Context, params *DefinitionParams) (*Location, error) {
	doc, buf, err := s.cell(ctx, params.TextDocument.URI, params.Cell)
	if err != nil {
		return nil, err
	}

	tok, ok := editor.SelectToken(ctx, buf, buf.PositionToOffset(params.Position), "")
	if !ok || tok.IsBlank() {
		return nil, nil
	}

	tgt, err := s.jumper.JumpToDefinition(ctx, jumper.Request{Document: doc, Cell: params.Cell, Token: tok})
	if errors.Is(err, jumper.ErrStale) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.location(tgt), nil
}

// Jump handles a click. Clicks without the configured modifier are not
// jumps and leave everything untouched.
func (s *Server) Jump(ctx context.Context, params *JumpParams) (*JumpResult, error) {
	if !params.Event.Activates(s.Modifier()) {
		return &JumpResult{}, nil
	}

	doc, buf, err := s.cell(ctx, params.TextDocument.URI, params.Cell)
	if err != nil {
		return nil, err
	}

	tok, ok := editor.SelectToken(ctx, buf, buf.PositionToOffset(params.Position), params.Label)
	if !ok || tok.IsBlank() {
		return &JumpResult{Activated: true, Outcome: metrics.OutcomeNone}, nil
	}

	tgt, err := s.jumper.JumpToDefinition(ctx, jumper.Request{Document: doc, Cell: params.Cell, Token: tok})
	if errors.Is(err, jumper.ErrStale) {
		return &JumpResult{Activated: true, Outcome: metrics.OutcomeNone}, nil
	}
	if err != nil {
		return nil, err
	}

	return &JumpResult{Activated: true, Outcome: tgt.Outcome, Location: s.location(tgt)}, nil
}

func (s *Server) JumpBack(ctx context.Context, params *JumpBackParams) (*Location, error) {
	if s.closing() {
		return nil, ErrShutdown
	}
	doc, ok := s.store.GetNoFallback(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	tgt, ok := s.jumper.JumpBack(ctx, doc)
	if !ok {
		return nil, nil
	}
	return s.location(tgt), nil
}

func (s *Server) location(tgt jumper.Target) *Location {
	if tgt.Outcome == metrics.OutcomeNone {
		return nil
	}

	id := tgt.DocumentID
	if id == "" {
		id = tgt.Path
	}
	loc := &Location{
		URI:   toURI(id),
		Cell:  tgt.Cell,
		Range: position.Range{Start: tgt.Place, End: tgt.Place},
	}

	if tgt.Outcome == metrics.OutcomeCrossFile {
		return loc
	}
	if doc, ok := s.store.GetNoFallback(id); ok {
		if c := editor.Cell(doc, tgt.Cell); c != nil {
			loc.Range = c.RangeOf(tgt.Token)
		}
	}
	return loc
}

func toURI(id string) string {
	if strings.HasPrefix(id, "/") {
		return "file://" + id
	}
	return id
}
