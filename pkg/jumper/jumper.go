/*
Package jumper resolves a clicked name to the place it was last defined.

	click (cell i, token t)
	        |
	        v
	cross-file reference? --yes--> introspection query --ok--> open path:line
	        |                            | error/timeout
	        no                           v
	        |                     guessed candidates --> first existing file
	        v
	scan cells 0..i, last eligible definition wins
	        |
	        v
	history push, move cursor

The scan treats the whole document as one flat namespace: function and class
scopes are not modelled.
*/
package jumper

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gotodef/pkg/analyzer"
	"github.com/walteh/gotodef/pkg/editor"
	"github.com/walteh/gotodef/pkg/finder"
	"github.com/walteh/gotodef/pkg/history"
	"github.com/walteh/gotodef/pkg/introspect"
	"github.com/walteh/gotodef/pkg/languages"
	"github.com/walteh/gotodef/pkg/metrics"
	"github.com/walteh/gotodef/pkg/position"
	"github.com/walteh/gotodef/pkg/tokens"
)

// DefaultTimeout bounds a live introspection query.
const DefaultTimeout = 2 * time.Second

var ErrStale = errors.Base("introspection answer arrived after a newer request")

// Location is a token in a cell of a document.
type Location struct {
	Token tokens.Token `json:"token"`
	Cell  int          `json:"cell"`
	// Fallback is set when no definition exists and the location is the
	// clicked token itself.
	Fallback bool `json:"fallback,omitempty"`
}

// Loader opens the document at path, typically from a workspace store.
type Loader func(ctx context.Context, path string) (editor.Document, error)

type Options struct {
	History *history.History
	Metrics *metrics.Metrics

	// Executor answers introspection queries; nil disables them.
	Executor    introspect.Executor
	Timeout     time.Duration
	StalePolicy introspect.StalePolicy

	Opener finder.Opener
	Loader Loader
}

type Jumper struct {
	history  *history.History
	metrics  *metrics.Metrics
	executor introspect.Executor
	timeout  time.Duration
	guard    *introspect.Guard
	opener   finder.Opener
	loader   Loader
}

func New(opts Options) *Jumper {
	j := &Jumper{
		history:  opts.History,
		metrics:  opts.Metrics,
		executor: opts.Executor,
		timeout:  opts.Timeout,
		guard:    introspect.NewGuard(opts.StalePolicy),
		opener:   opts.Opener,
		loader:   opts.Loader,
	}
	if j.history == nil {
		j.history = history.New()
	}
	if j.timeout <= 0 {
		j.timeout = DefaultTimeout
	}
	return j
}

func (j *Jumper) History() *history.History {
	return j.history
}

func (j *Jumper) Guard() *introspect.Guard {
	return j.guard
}

// analyzerFor picks the grammar of a cell, magics included.
func analyzerFor(ctx context.Context, cell *editor.Buffer) *analyzer.Analyzer {
	return analyzer.New(languages.Choose(ctx, string(cell.Language())), cell)
}

// FindLastDefinition scans cells 0..stop of doc for the last definition of
// origin's name that precedes origin. Later cells win over earlier ones, and
// within a cell the highest eligible offset wins. In the origin cell,
// definitions before the click but in the same assignment statement (the
// left "a" of "a = a + 1") are skipped. When nothing is found the origin
// itself is returned with Fallback set. ok is false only when stop is not a
// cell of doc.
func FindLastDefinition(ctx context.Context, doc editor.Document, origin tokens.Token, stop int) (loc Location, ok bool) {
	cells := doc.Cells()
	if stop < 0 || stop >= len(cells) {
		return Location{}, false
	}

	found := false
	for i := 0; i <= stop; i++ {
		cell := cells[i]
		if cell.Kind() != editor.CellCode {
			continue
		}

		a := analyzerFor(ctx, cell)
		defs := a.GetDefinitions(origin.Value)

		var best *tokens.Token
		for k := range defs {
			d := defs[k]
			if i == stop {
				if d.Offset >= origin.Offset {
					continue
				}
				if a.IsTokenInSameAssignmentExpression(d, origin) {
					continue
				}
			}
			best = &defs[k]
		}

		if best != nil {
			loc = Location{Token: *best, Cell: i}
			found = true
		}
	}

	if !found {
		return Location{Token: origin, Cell: stop, Fallback: true}, true
	}
	return loc, true
}

// Request is one activation: a token clicked in a cell of a document.
type Request struct {
	Document editor.Document
	Cell     int
	Token    tokens.Token
}

// Target is where a jump landed.
type Target struct {
	// Outcome is one of the metrics.Outcome* values.
	Outcome string `json:"outcome"`

	DocumentID string       `json:"documentId,omitempty"`
	Path       string       `json:"path,omitempty"`
	Cell       int          `json:"cell"`
	Token      tokens.Token `json:"token"`
	// Place is the cursor position in the target cell.
	Place position.Place `json:"place"`
}

// JumpToDefinition resolves req and moves the cursor of the target document.
// Missing definitions and unresolvable cross-file references are not errors;
// they come back as a fallback or a none outcome.
func (j *Jumper) JumpToDefinition(ctx context.Context, req Request) (tgt Target, err error) {
	start := time.Now()

	cell := editor.Cell(req.Document, req.Cell)
	if cell == nil {
		return Target{Outcome: metrics.OutcomeNone}, errors.Errorf("document %s has no cell %d", req.Document.ID(), req.Cell)
	}
	lang := string(cell.Language())

	ctx, span := metrics.Tracer.Start(ctx, "jumper.JumpToDefinition", trace.WithAttributes(
		attribute.String("document", req.Document.ID()),
		attribute.String("language", lang),
		attribute.String("name", req.Token.Value),
		attribute.Int("cell", req.Cell),
	))
	defer func() {
		span.SetAttributes(attribute.String("outcome", tgt.Outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if j.metrics != nil {
			j.metrics.JumpsTotal.WithLabelValues(lang, tgt.Outcome).Inc()
			j.metrics.ResolveDuration.WithLabelValues(lang).Observe(time.Since(start).Seconds())
		}
	}()

	logger := zerolog.Ctx(ctx).With().Str("document", req.Document.ID()).Int("cell", req.Cell).Str("name", req.Token.Value).Logger()
	ctx = logger.WithContext(ctx)

	a := analyzerFor(ctx, cell)
	if tc := a.ContextOf(req.Token); tc.Exists() && a.IsCrossFileReference(tc) {
		return j.jumpToFile(ctx, req, a, tc)
	}

	loc, ok := FindLastDefinition(ctx, req.Document, req.Token, req.Cell)
	if !ok {
		return Target{Outcome: metrics.OutcomeNone}, nil
	}

	j.history.Store(req.Document.ID(), history.Position{Token: req.Token, Cell: req.Cell})

	tgt = Target{
		Outcome:    metrics.OutcomeLocal,
		DocumentID: req.Document.ID(),
		Path:       req.Document.Path(),
		Cell:       loc.Cell,
		Token:      loc.Token,
		Place:      moveCursor(req.Document, loc.Cell, loc.Token.Offset),
	}
	if loc.Fallback {
		tgt.Outcome = metrics.OutcomeFallback
	}

	logger.Debug().Str("outcome", tgt.Outcome).Int("target_cell", tgt.Cell).Stringer("target", tgt.Place).Msg("resolved definition")
	return tgt, nil
}

// jumpToFile asks the live session first and falls back to guessing paths.
func (j *Jumper) jumpToFile(ctx context.Context, req Request, a *analyzer.Analyzer, tc tokens.Context) (Target, error) {
	logger := zerolog.Ctx(ctx)
	docID := req.Document.ID()
	generation := j.guard.Begin(docID)

	path, line := "", 0

	if res, asked := j.introspect(ctx, a, tc); asked {
		if !j.guard.Accept(docID, generation) {
			j.introspection(metrics.IntrospectionStale)
			logger.Debug().Msg("dropping stale introspection answer")
			return Target{Outcome: metrics.OutcomeNone}, ErrStale
		}
		if res.OK() {
			path, line = res.Path, res.Line
		}
	}

	if path == "" && j.opener != nil {
		dir := ""
		if p := req.Document.Path(); p != "" {
			dir = filepath.Dir(p)
		}
		found, err := j.opener.Find(ctx, dir, a.GuessReferencePath(tc))
		if err != nil {
			logger.Debug().Err(err).Msg("no candidate path for cross-file reference")
			return Target{Outcome: metrics.OutcomeNone}, nil
		}
		path = found
	}

	if path == "" {
		return Target{Outcome: metrics.OutcomeNone}, nil
	}

	tgt := Target{Outcome: metrics.OutcomeCrossFile, Path: path}
	if line > 0 {
		tgt.Place = position.Place{Line: line - 1}
	}

	if j.loader != nil {
		doc, err := j.loader(ctx, path)
		if err != nil {
			// the file may have vanished since it was found
			logger.Debug().Err(err).Str("path", path).Msg("opening cross-file target")
			return Target{Outcome: metrics.OutcomeNone}, nil
		}
		tgt.DocumentID = doc.ID()
		if c := editor.Cell(doc, 0); c != nil {
			off := c.PositionToOffset(tgt.Place)
			tgt.Place = moveCursor(doc, 0, off)
			if tok, ok := c.TokenAt(off); ok {
				tgt.Token = tok
			}
		}
	}

	logger.Debug().Str("path", path).Stringer("target", tgt.Place).Msg("resolved cross-file reference")
	return tgt, nil
}

func (j *Jumper) introspect(ctx context.Context, a *analyzer.Analyzer, tc tokens.Context) (introspect.Result, bool) {
	if j.executor == nil {
		return introspect.Result{}, false
	}
	code := a.ReferencePathQuery(tc)
	if code == "" {
		return introspect.Result{}, false
	}

	res := introspect.Query(ctx, j.executor, a.Language(), code, j.timeout)
	switch {
	case res.OK():
		j.introspection(metrics.IntrospectionOK)
	case errors.Is(res.Err, introspect.ErrUnavailable):
		j.introspection(metrics.IntrospectionUnavailable)
	default:
		j.introspection(metrics.IntrospectionError)
		zerolog.Ctx(ctx).Debug().Err(res.Err).Msg("introspection failed, guessing paths")
	}
	return res, true
}

func (j *Jumper) introspection(result string) {
	if j.metrics != nil {
		j.metrics.IntrospectionsTotal.WithLabelValues(result).Inc()
	}
}

// JumpBack restores the most recent origin of doc. It is a no-op returning
// false when there is nothing to go back to.
func (j *Jumper) JumpBack(ctx context.Context, doc editor.Document) (Target, bool) {
	pos, ok := j.history.Recollect(doc.ID())
	if !ok {
		return Target{}, false
	}
	// a pending introspection answer must not pull the cursor away again
	j.guard.Invalidate(doc.ID())

	if j.metrics != nil {
		j.metrics.JumpBacksTotal.Inc()
	}

	tgt := Target{
		Outcome:    metrics.OutcomeLocal,
		DocumentID: doc.ID(),
		Path:       doc.Path(),
		Cell:       pos.Cell,
		Token:      pos.Token,
		Place:      moveCursor(doc, pos.Cell, pos.Token.Offset),
	}
	zerolog.Ctx(ctx).Debug().Str("document", doc.ID()).Int("cell", pos.Cell).Stringer("target", tgt.Place).Msg("jumped back")
	return tgt, true
}

// Forget drops the state kept for a closed document.
func (j *Jumper) Forget(documentID string) {
	j.history.Forget(documentID)
	j.guard.Forget(documentID)
}

// moveCursor focuses cell and places a collapsed selection at offset.
func moveCursor(doc editor.Document, cell int, offset int) position.Place {
	for i, c := range doc.Cells() {
		if i != cell {
			c.Blur()
		}
	}
	c := editor.Cell(doc, cell)
	if c == nil {
		return position.Place{}
	}
	c.SetSelection(offset, offset)
	c.Focus()
	return c.OffsetToPosition(offset)
}
