package rlang

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/gotodef/pkg/analyzer"
	"github.com/walteh/gotodef/pkg/lexer"
	"github.com/walteh/gotodef/pkg/tokens"
)

func contextOf(t *testing.T, src, name string, occurrence int) tokens.Context {
	t.Helper()
	toks, err := lexer.Tokenize(lexer.R, src)
	require.NoError(t, err)

	seq := tokens.NewSequence(toks)
	n := 0
	for i, tok := range toks {
		if tok.Value != name || tok.IsBlank() || tok.Type == tokens.KindComment {
			continue
		}
		if n == occurrence {
			return seq.At(i)
		}
		n++
	}
	require.FailNow(t, "token not found", "%q #%d in %q", name, occurrence, src)
	return tokens.Context{}
}

func TestRules(t *testing.T) {
	tests := []struct {
		name       string
		rule       analyzer.RuleFunc
		src        string
		token      string
		occurrence int
		want       bool
	}{
		{name: "left_arrow", rule: IsStandaloneAssignment, src: "x <- 1", token: "x", want: true},
		{name: "super_arrow", rule: IsStandaloneAssignment, src: "x <<- 1", token: "x", want: true},
		{name: "right_arrow", rule: IsStandaloneAssignment, src: "1 -> x", token: "x", want: true},
		{name: "right_super_arrow", rule: IsStandaloneAssignment, src: "1 ->> x", token: "x", want: true},
		{name: "equals", rule: IsStandaloneAssignment, src: "x = 1", token: "x", want: true},
		{name: "equals_in_block", rule: IsStandaloneAssignment, src: "f <- function() {\n  x = 1\n}", token: "x", want: true},
		{name: "named_argument", rule: IsStandaloneAssignment, src: "f(x = 1)", token: "x", want: false},
		{name: "comparison", rule: IsStandaloneAssignment, src: "x == 1", token: "x", want: false},
		{name: "value", rule: IsStandaloneAssignment, src: "x <- y", token: "y", want: false},

		{name: "library", rule: IsImport, src: "library(dplyr)", token: "dplyr", want: true},
		{name: "require", rule: IsImport, src: "require(ggplot2)", token: "ggplot2", want: true},
		{name: "print", rule: IsImport, src: "print(dplyr)", token: "dplyr", want: false},
		{name: "import_from_module", rule: IsImport, src: "import::from(mod, a, b)", token: "mod", want: false},
		{name: "import_from_name", rule: IsImport, src: "import::from(mod, a, b)", token: "a", want: true},
		{name: "import_from_last", rule: IsImport, src: "import::from(mod, a, b)", token: "b", want: true},
		{name: "import_here_named", rule: IsImport, src: "import::here(a, b, .from = mod)", token: "a", want: true},
		{name: "import_here_named_last", rule: IsImport, src: "import::here(a, b, .from = mod)", token: "b", want: true},
		{name: "import_here_module", rule: IsImport, src: "import::here(a, b, .from = mod)", token: "mod", want: false},
		{name: "import_here_keyword", rule: IsImport, src: "import::here(a, b, .from = mod)", token: ".from", want: false},
		{name: "import_here_positional", rule: IsImport, src: "import::here(a, b, from_module)", token: "a", want: true},
		{name: "import_here_positional_second", rule: IsImport, src: "import::here(a, b, from_module)", token: "b", want: true},
		{name: "import_here_positional_module", rule: IsImport, src: "import::here(a, b, from_module)", token: "from_module", want: false},
		{name: "import_here_nested", rule: IsImport, src: "import::here(f(a), .from = mod)", token: "a", want: false},
		{name: "other_namespace", rule: IsImport, src: "utils::here(a, b)", token: "b", want: false},

		{name: "for_loop", rule: IsForLoop, src: "for (i in 1:10) print(i)", token: "i", occurrence: 0, want: true},
		{name: "for_body", rule: IsForLoop, src: "for (i in 1:10) print(i)", token: "i", occurrence: 1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := contextOf(t, tt.src, tt.token, tt.occurrence)
			assert.Equal(t, tt.want, tt.rule(c), "%q in %q", tt.token, tt.src)
		})
	}
}

func TestSourceReference(t *testing.T) {
	c := contextOf(t, "source('utils.R')", "source", 0)
	require.True(t, IsCrossFileReference(c))
	assert.Equal(t, []string{"utils.R"}, GuessReferencePath(c))
	assert.Contains(t, ReferencePathQuery(c), "normalizePath('utils.R')")

	c = contextOf(t, `source("lib/a.R", local = TRUE)`, "source", 0)
	require.True(t, IsCrossFileReference(c))
	assert.Equal(t, []string{"lib/a.R"}, GuessReferencePath(c))

	for _, src := range []string{"source('')", "source(path)", "source"} {
		c := contextOf(t, src, "source", 0)
		assert.False(t, IsCrossFileReference(c), src)
		assert.Nil(t, GuessReferencePath(c), src)
		assert.Empty(t, ReferencePathQuery(c), src)
	}
}

func TestGetDefinitions(t *testing.T) {
	src := `library(x)
x <- 1
x <<- 2
3 -> x
f(x = 4)
for (x in 1:3) print(x)
x == 5
`
	a := analyzer.New(Grammar(), lexer.NewProvider(context.Background(), lexer.R, src))

	defs := a.GetDefinitions("x")
	require.Len(t, defs, 5)
	assert.Equal(t, 8, defs[0].Offset)
}

func TestSameAssignmentExpression(t *testing.T) {
	a := analyzer.New(Grammar(), lexer.NewProvider(context.Background(), lexer.R, "x <- 1\nx <- x + 1"))
	toks := a.Sequence().Tokens()

	var xs []tokens.Token
	for _, tok := range toks {
		if tok.Value == "x" {
			xs = append(xs, tok)
		}
	}
	require.Len(t, xs, 3)

	assert.True(t, a.IsTokenInSameAssignmentExpression(xs[1], xs[2]))
	assert.False(t, a.IsTokenInSameAssignmentExpression(xs[0], xs[2]))
}
