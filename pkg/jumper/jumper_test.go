package jumper_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gotodef/pkg/editor"
	"github.com/walteh/gotodef/pkg/finder"
	"github.com/walteh/gotodef/pkg/jumper"
	"github.com/walteh/gotodef/pkg/lexer"
	"github.com/walteh/gotodef/pkg/metrics"
	"github.com/walteh/gotodef/pkg/position"
	"github.com/walteh/gotodef/pkg/tokens"
	"github.com/walteh/gotodef/pkg/workspace"
)

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, lang lexer.Language, code string) (string, error) {
	args := m.Called(ctx, lang, code)
	return args.String(0), args.Error(1)
}

func notebook(t *testing.T, lang lexer.Language, cells ...string) *editor.Notebook {
	t.Helper()
	srcs := make([]editor.CellSource, len(cells))
	for i, c := range cells {
		srcs[i] = editor.CellSource{Kind: editor.CellCode, Source: c}
	}
	return editor.NewNotebook(context.Background(), "nb", "/w/nb.ipynb", lang, srcs)
}

// tokenAt fetches the real token under offset so tests never guess kinds.
func tokenAt(t *testing.T, doc editor.Document, cell, offset int) tokens.Token {
	t.Helper()
	tok, ok := editor.Cell(doc, cell).TokenAt(offset)
	require.True(t, ok, "no token at %d in cell %d", offset, cell)
	return tok
}

func TestFindLastDefinition(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		lang      lexer.Language
		cells     []string
		cell      int
		offset    int
		wantCell  int
		wantOff   int
		wantFall  bool
		wantValue string
	}{
		{name: "previous_line", lang: lexer.Python, cells: []string{"a = 1\nx = a"}, cell: 0, offset: 10, wantCell: 0, wantOff: 0, wantValue: "a"},
		{name: "self_reference_skipped", lang: lexer.Python, cells: []string{"a = 1\na = a + 1"}, cell: 0, offset: 10, wantCell: 0, wantOff: 0, wantValue: "a"},
		{name: "last_definition_wins", lang: lexer.Python, cells: []string{"a = 1\na = 2\nprint(a)"}, cell: 0, offset: 18, wantCell: 0, wantOff: 6, wantValue: "a"},
		{name: "later_definition_ignored", lang: lexer.Python, cells: []string{"a = 1\nprint(a)\na = 2"}, cell: 0, offset: 12, wantCell: 0, wantOff: 0, wantValue: "a"},
		{name: "earlier_cell", lang: lexer.Python, cells: []string{"a = 1", "print(a)"}, cell: 1, offset: 6, wantCell: 0, wantOff: 0, wantValue: "a"},
		{name: "later_cell_beats_earlier", lang: lexer.Python, cells: []string{"a = 1", "a = 2", "print(a)"}, cell: 2, offset: 6, wantCell: 1, wantOff: 0, wantValue: "a"},
		{name: "cells_after_origin_ignored", lang: lexer.Python, cells: []string{"a = 1", "print(a)", "a = 3"}, cell: 1, offset: 6, wantCell: 0, wantOff: 0, wantValue: "a"},
		{name: "earlier_cell_self_reference_kept", lang: lexer.Python, cells: []string{"a = 1\na = a + 1", "b = a"}, cell: 1, offset: 4, wantCell: 0, wantOff: 6, wantValue: "a"},
		{name: "origin_cell_beats_earlier", lang: lexer.Python, cells: []string{"a = 1", "a = 2\nb = a"}, cell: 1, offset: 10, wantCell: 1, wantOff: 0, wantValue: "a"},
		{name: "function_definition", lang: lexer.Python, cells: []string{"def f():\n    pass\nf()"}, cell: 0, offset: 18, wantCell: 0, wantOff: 4, wantValue: "f"},
		{name: "undefined_falls_back", lang: lexer.Python, cells: []string{"x = 1", "print(zzz)"}, cell: 1, offset: 6, wantCell: 1, wantOff: 6, wantFall: true, wantValue: "zzz"},
		{name: "r_rightward_arrow", lang: lexer.R, cells: []string{"1 -> a\nprint(a)"}, cell: 0, offset: 13, wantCell: 0, wantOff: 5, wantValue: "a"},
		{name: "r_magic_cells", lang: lexer.Python, cells: []string{"x = 1", "%%R\nx <- 2", "%%R\nprint(x)"}, cell: 2, offset: 10, wantCell: 1, wantOff: 4, wantValue: "x"},
		{name: "python_after_r_magic", lang: lexer.Python, cells: []string{"x = 1", "%%R\nx <- 2", "print(x)"}, cell: 2, offset: 6, wantCell: 1, wantOff: 4, wantValue: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := notebook(t, tt.lang, tt.cells...)
			origin := tokenAt(t, doc, tt.cell, tt.offset)

			loc, ok := jumper.FindLastDefinition(ctx, doc, origin, tt.cell)
			require.True(t, ok)
			assert.Equal(t, tt.wantCell, loc.Cell)
			assert.Equal(t, tt.wantOff, loc.Token.Offset)
			assert.Equal(t, tt.wantValue, loc.Token.Value)
			assert.Equal(t, tt.wantFall, loc.Fallback)
		})
	}
}

func TestFindLastDefinitionPlainPythonIgnoresArrow(t *testing.T) {
	// without the magic, "x <- 2" is a comparison in python
	doc := notebook(t, lexer.Python, "x = 1", "x <- 2", "print(x)")
	loc, ok := jumper.FindLastDefinition(context.Background(), doc, tokenAt(t, doc, 2, 6), 2)
	require.True(t, ok)
	assert.Equal(t, 0, loc.Cell)
}

func TestFindLastDefinitionOutOfRange(t *testing.T) {
	doc := notebook(t, lexer.Python, "a = 1")
	_, ok := jumper.FindLastDefinition(context.Background(), doc, tokens.Token{Value: "a"}, 3)
	assert.False(t, ok)
	_, ok = jumper.FindLastDefinition(context.Background(), doc, tokens.Token{Value: "a"}, -1)
	assert.False(t, ok)
}

func TestJumpToDefinitionAndBack(t *testing.T) {
	ctx := context.Background()
	m := metrics.NewIsolated()
	j := jumper.New(jumper.Options{Metrics: m})

	doc := editor.NewFile(ctx, "", "/w/a.py", lexer.Python, "a = 1\nx = a")
	origin := tokenAt(t, doc, 0, 10)

	tgt, err := j.JumpToDefinition(ctx, jumper.Request{Document: doc, Cell: 0, Token: origin})
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeLocal, tgt.Outcome)
	assert.Equal(t, 0, tgt.Token.Offset)
	assert.Equal(t, position.Place{Line: 0, Character: 0}, tgt.Place)
	assert.Equal(t, "/w/a.py", tgt.DocumentID)

	start, end := doc.Buffer().Selection()
	assert.Equal(t, 0, start)
	assert.Equal(t, 0, end)
	assert.True(t, doc.Buffer().Focused())
	assert.Equal(t, 1, j.History().Len(doc.ID()))

	back, ok := j.JumpBack(ctx, doc)
	require.True(t, ok)
	assert.Equal(t, origin, back.Token)
	assert.Equal(t, position.Place{Line: 1, Character: 4}, back.Place)
	start, _ = doc.Buffer().Selection()
	assert.Equal(t, 10, start)

	_, ok = j.JumpBack(ctx, doc)
	assert.False(t, ok, "history is empty again")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JumpsTotal.WithLabelValues("python", metrics.OutcomeLocal)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JumpBacksTotal))
}

func TestJumpFocusesTargetCell(t *testing.T) {
	ctx := context.Background()
	j := jumper.New(jumper.Options{})

	doc := notebook(t, lexer.Python, "a = 1", "print(a)")
	editor.Cell(doc, 1).Focus()

	tgt, err := j.JumpToDefinition(ctx, jumper.Request{Document: doc, Cell: 1, Token: tokenAt(t, doc, 1, 6)})
	require.NoError(t, err)
	assert.Equal(t, 0, tgt.Cell)
	assert.True(t, editor.Cell(doc, 0).Focused())
	assert.False(t, editor.Cell(doc, 1).Focused())

	back, ok := j.JumpBack(ctx, doc)
	require.True(t, ok)
	assert.Equal(t, 1, back.Cell)
	assert.True(t, editor.Cell(doc, 1).Focused())
}

func TestJumpFallbackOutcome(t *testing.T) {
	ctx := context.Background()
	m := metrics.NewIsolated()
	j := jumper.New(jumper.Options{Metrics: m})

	doc := editor.NewFile(ctx, "", "/w/a.py", lexer.Python, "print(zzz)")
	tgt, err := j.JumpToDefinition(ctx, jumper.Request{Document: doc, Token: tokenAt(t, doc, 0, 6)})
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeFallback, tgt.Outcome)
	assert.Equal(t, 6, tgt.Token.Offset)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JumpsTotal.WithLabelValues("python", metrics.OutcomeFallback)))
}

func TestJumpBadCell(t *testing.T) {
	j := jumper.New(jumper.Options{})
	doc := editor.NewFile(context.Background(), "", "/w/a.py", lexer.Python, "a = 1")
	_, err := j.JumpToDefinition(context.Background(), jumper.Request{Document: doc, Cell: 4})
	assert.Error(t, err)
}

func crossFileFixture(t *testing.T) (afero.Fs, *editor.File) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/w/y.py", []byte("x = 1\n"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/w/nb.py", []byte("from y import x\n"), 0o644))
	doc := editor.NewFile(context.Background(), "", "/w/nb.py", lexer.Python, "from y import x\n")
	return fsys, doc
}

func TestJumpCrossFileGuessedPath(t *testing.T) {
	ctx := context.Background()
	fsys, doc := crossFileFixture(t)
	store := workspace.New(fsys, lexer.Python)
	m := metrics.NewIsolated()

	j := jumper.New(jumper.Options{
		Metrics: m,
		Opener:  finder.NewDefaultFinder(fsys, "/w", nil),
		Loader:  store.Get,
	})

	tgt, err := j.JumpToDefinition(ctx, jumper.Request{Document: doc, Token: tokenAt(t, doc, 0, 5)})
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeCrossFile, tgt.Outcome)
	assert.Equal(t, "/w/y.py", tgt.Path)
	assert.Equal(t, "/w/y.py", tgt.DocumentID)
	assert.Equal(t, position.Place{}, tgt.Place)
	assert.Equal(t, 0, j.History().Len(doc.ID()), "cross-file jumps do not push history")

	loaded, ok := store.GetNoFallback("/w/y.py")
	require.True(t, ok)
	assert.True(t, loaded.Cells()[0].Focused())

	// clicking the imported name is a local lookup
	tgt, err = j.JumpToDefinition(ctx, jumper.Request{Document: doc, Token: tokenAt(t, doc, 0, 14)})
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeFallback, tgt.Outcome, "the import itself is the only definition and it is the origin")
}

func TestJumpCrossFileIntrospection(t *testing.T) {
	ctx := context.Background()
	fsys, doc := crossFileFixture(t)
	m := metrics.NewIsolated()

	exec := &MockExecutor{}
	exec.On("Execute", mock.Anything, lexer.Python, mock.AnythingOfType("string")).
		Return("{\"path\": \"/site/y.py\", \"line\": 3}\n", nil).Once()

	j := jumper.New(jumper.Options{
		Metrics:  m,
		Executor: exec,
		Timeout:  time.Second,
		Opener:   finder.NewDefaultFinder(fsys, "/w", nil),
	})

	tgt, err := j.JumpToDefinition(ctx, jumper.Request{Document: doc, Token: tokenAt(t, doc, 0, 5)})
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeCrossFile, tgt.Outcome)
	assert.Equal(t, "/site/y.py", tgt.Path)
	assert.Equal(t, position.Place{Line: 2}, tgt.Place)
	exec.AssertExpectations(t)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IntrospectionsTotal.WithLabelValues(metrics.IntrospectionOK)))
}

func TestJumpCrossFileIntrospectionFallsBack(t *testing.T) {
	ctx := context.Background()
	fsys, doc := crossFileFixture(t)
	m := metrics.NewIsolated()

	exec := &MockExecutor{}
	exec.On("Execute", mock.Anything, lexer.Python, mock.Anything).Return("", errors.New("ModuleNotFoundError")).Once()

	j := jumper.New(jumper.Options{
		Metrics:  m,
		Executor: exec,
		Opener:   finder.NewDefaultFinder(fsys, "/w", nil),
	})

	tgt, err := j.JumpToDefinition(ctx, jumper.Request{Document: doc, Token: tokenAt(t, doc, 0, 5)})
	require.NoError(t, err)
	assert.Equal(t, "/w/y.py", tgt.Path)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IntrospectionsTotal.WithLabelValues(metrics.IntrospectionError)))
}

func TestJumpCrossFileUnresolved(t *testing.T) {
	ctx := context.Background()
	doc := editor.NewFile(ctx, "", "/w/nb.py", lexer.Python, "import nowhere\n")

	j := jumper.New(jumper.Options{Opener: finder.NewDefaultFinder(afero.NewMemMapFs(), "/w", nil)})
	tgt, err := j.JumpToDefinition(ctx, jumper.Request{Document: doc, Token: tokenAt(t, doc, 0, 7)})
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeNone, tgt.Outcome)

	// no opener and no executor: nothing to do, still not an error
	tgt, err = jumper.New(jumper.Options{}).JumpToDefinition(ctx, jumper.Request{Document: doc, Token: tokenAt(t, doc, 0, 7)})
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeNone, tgt.Outcome)
}

func TestJumpCrossFileStaleAnswer(t *testing.T) {
	ctx := context.Background()
	fsys, doc := crossFileFixture(t)
	m := metrics.NewIsolated()

	exec := &MockExecutor{}
	j := jumper.New(jumper.Options{
		Metrics:  m,
		Executor: exec,
		Opener:   finder.NewDefaultFinder(fsys, "/w", nil),
	})

	// the user jumps elsewhere while the kernel is still answering
	exec.On("Execute", mock.Anything, lexer.Python, mock.Anything).
		Run(func(mock.Arguments) { j.Guard().Invalidate(doc.ID()) }).
		Return(`{"path": "/site/y.py"}`, nil).Once()

	tgt, err := j.JumpToDefinition(ctx, jumper.Request{Document: doc, Token: tokenAt(t, doc, 0, 5)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, jumper.ErrStale))
	assert.Equal(t, metrics.OutcomeNone, tgt.Outcome)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IntrospectionsTotal.WithLabelValues(metrics.IntrospectionStale)))
}

func TestJumpCrossFileStaleApplied(t *testing.T) {
	ctx := context.Background()
	fsys, doc := crossFileFixture(t)

	exec := &MockExecutor{}
	j := jumper.New(jumper.Options{
		Executor:    exec,
		StalePolicy: "apply",
		Opener:      finder.NewDefaultFinder(fsys, "/w", nil),
	})
	exec.On("Execute", mock.Anything, lexer.Python, mock.Anything).
		Run(func(mock.Arguments) { j.Guard().Invalidate(doc.ID()) }).
		Return(`{"path": "/site/y.py"}`, nil).Once()

	tgt, err := j.JumpToDefinition(ctx, jumper.Request{Document: doc, Token: tokenAt(t, doc, 0, 5)})
	require.NoError(t, err)
	assert.Equal(t, "/site/y.py", tgt.Path)
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	j := jumper.New(jumper.Options{})
	doc := editor.NewFile(ctx, "", "/w/a.py", lexer.Python, "a = 1\nx = a")

	_, err := j.JumpToDefinition(ctx, jumper.Request{Document: doc, Token: tokenAt(t, doc, 0, 10)})
	require.NoError(t, err)
	j.Forget(doc.ID())

	_, ok := j.JumpBack(ctx, doc)
	assert.False(t, ok)
}
