package python

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/gotodef/pkg/analyzer"
	"github.com/walteh/gotodef/pkg/lexer"
	"github.com/walteh/gotodef/pkg/tokens"
)

// contextOf returns the occurrence-th token with the given value that is
// neither blank nor inside a string or comment.
func contextOf(t *testing.T, src, name string, occurrence int) tokens.Context {
	t.Helper()
	toks, err := lexer.Tokenize(lexer.Python, src)
	require.NoError(t, err)

	seq := tokens.NewSequence(toks)
	n := 0
	for i, tok := range toks {
		if tok.Value != name || tok.IsBlank() || tok.Type == tokens.KindString || tok.Type == tokens.KindComment {
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

type ruleCase struct {
	name       string
	src        string
	token      string
	occurrence int
	want       bool
}

func runRule(t *testing.T, rule analyzer.RuleFunc, cases []ruleCase) {
	t.Helper()
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			c := contextOf(t, tt.src, tt.token, tt.occurrence)
			assert.Equal(t, tt.want, rule(c), "%q in %q", tt.token, tt.src)
		})
	}
}

func TestIsStandaloneAssignment(t *testing.T) {
	runRule(t, IsStandaloneAssignment, []ruleCase{
		{name: "plain", src: "x = 1", token: "x", want: true},
		{name: "augmented", src: "x += 1", token: "x", want: false},
		{name: "comparison", src: "x == 1", token: "x", want: false},
		{name: "keyword_argument", src: "f(x=1)", token: "x", want: false},
		{name: "right_hand_side", src: "x = y", token: "y", want: false},
		{name: "indented", src: "if a:\n    x = 1", token: "x", want: true},
		{name: "annotated", src: "a: int = 1", token: "a", want: true},
		{name: "annotated_generic", src: "a: dict[str, int] = {}", token: "a", want: true},
		{name: "annotation_only", src: "a: int", token: "a", want: false},
		{name: "if_condition", src: "if a: b = 1", token: "a", want: false},
		{name: "if_body", src: "if a: b = 1", token: "b", want: true},
		{name: "lambda_default", src: "f = lambda a=1: a", token: "a", want: false},
		{name: "lambda_second_default", src: "f = lambda a, b=2: b", token: "b", want: false},
		{name: "lambda_result", src: "f = lambda a=1: a", token: "f", want: true},
	})
}

func TestIsImport(t *testing.T) {
	runRule(t, IsImport, []ruleCase{
		{name: "import", src: "import os", token: "os", want: true},
		{name: "from_import_name", src: "from y import x", token: "x", want: true},
		{name: "from_import_module", src: "from y import x", token: "y", want: false},
		{name: "dotted_head", src: "import a.b", token: "a", want: true},
		{name: "comma_list", src: "from m import a, b", token: "b", want: true},
		{name: "parenthesized", src: "from m import (a,\n    b)", token: "b", want: true},
		{name: "aliased_module", src: "import y as x", token: "y", want: false},
		{name: "alias", src: "import y as x", token: "x", want: true},
		{name: "next_statement", src: "import os\nos = 1", token: "os", occurrence: 1, want: false},
		{name: "call_argument", src: "x = foo(a, b)", token: "b", want: false},
		{name: "indented", src: "def f():\n    import os", token: "os", want: true},
	})
}

func TestIsWithStatement(t *testing.T) {
	runRule(t, IsWithStatement, []ruleCase{
		{name: "with", src: "with open(p) as f:", token: "f", want: true},
		{name: "except", src: "except ValueError as err:", token: "err", want: true},
		{name: "opened", src: "with open(p) as f:", token: "p", want: false},
	})
}

func TestIsForLoopOrComprehension(t *testing.T) {
	runRule(t, IsForLoopOrComprehension, []ruleCase{
		{name: "for_loop", src: "for x in range(10):", token: "x", want: true},
		{name: "tuple_target_head", src: "for i, (k, v) in items:", token: "i", want: true},
		{name: "tuple_target_nested", src: "for i, (k, v) in items:", token: "v", want: true},
		{name: "comprehension_element", src: "[x for x in xs]", token: "x", occurrence: 0, want: false},
		{name: "comprehension_target", src: "[x for x in xs]", token: "x", occurrence: 1, want: true},
		{name: "dict_comprehension_key", src: "{k: v for k, v in d.items()}", token: "k", occurrence: 0, want: false},
		{name: "dict_comprehension_target", src: "{k: v for k, v in d.items()}", token: "k", occurrence: 1, want: true},
		{name: "membership_test", src: "print(x in xs)", token: "x", want: false},
		{name: "iterable", src: "for x in xs:", token: "xs", want: false},
	})
}

func TestIsTupleUnpacking(t *testing.T) {
	runRule(t, IsTupleUnpacking, []ruleCase{
		{name: "first", src: "a, b = 1, 2", token: "a", want: true},
		{name: "second", src: "a, b = 1, 2", token: "b", want: true},
		{name: "value", src: "a, b = c, d", token: "c", want: false},
		{name: "nested_outer", src: "x, (y, z) = 1, (2, 3)", token: "x", want: true},
		{name: "nested_inner", src: "x, (y, z) = 1, (2, 3)", token: "y", want: true},
		{name: "nested_last", src: "x, (y, z) = 1, (2, 3)", token: "z", want: true},
		{name: "multiline", src: "(a,\n b) = 1, 2", token: "a", want: true},
		{name: "multiline_comment", src: "(a,  # first\n b) = 1, 2", token: "a", want: true},
		{name: "multiline_comment_last", src: "(a,\n b  # second\n) = 1, 2", token: "b", want: true},
		{name: "starred", src: "a, *rest = xs", token: "a", want: true},
		{name: "starred_target", src: "a, *rest = xs", token: "rest", want: true},
		{name: "call_result", src: "x = y(a, b, c=1)", token: "x", want: true},
		{name: "call_callee", src: "x = y(a, b, c=1)", token: "y", want: false},
		{name: "call_positional", src: "x = y(a, b, c=1)", token: "a", want: false},
		{name: "call_second", src: "x = y(a, b, c=1)", token: "b", want: false},
		{name: "call_keyword", src: "x = y(a, b, c=1)", token: "c", want: false},
		{name: "call_statement", src: "print(a, b)", token: "a", want: false},
		{name: "bare_tuple", src: "a, b", token: "a", want: false},
		{name: "line_ends_tuple", src: "a, b\nc = 1", token: "a", want: false},
	})
}

func TestIsStoreMagic(t *testing.T) {
	runRule(t, IsStoreMagic, []ruleCase{
		{name: "restore", src: "%store -r x", token: "x", want: true},
		{name: "restore_several", src: "%store -r a b", token: "b", want: true},
		{name: "indented", src: "  %store -r x", token: "x", want: true},
		{name: "second_line", src: "y = 1\n%store -r x", token: "x", want: true},
		{name: "save", src: "%store x", token: "x", want: false},
		{name: "no_percent", src: "store -r x", token: "x", want: false},
		{name: "spaced_magic", src: "% store -r x", token: "x", want: false},
		{name: "not_line_start", src: "y %store -r x", token: "x", want: false},
		{name: "plain", src: "x", token: "x", want: false},
	})
}

func TestStoreMagicDefinitions(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int
	}{
		{name: "restore", src: "%store -r x\nprint(x)", want: 1},
		{name: "commented", src: "# %store -r x\nprint(x)", want: 0},
		{name: "other_name", src: "%store -r xx\nprint(x)", want: 0},
		{name: "no_percent", src: "store -r x\nprint(x)", want: 0},
		{name: "save", src: "%store x\nprint(x)", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := analyzer.New(Grammar(), lexer.NewProvider(context.Background(), lexer.Python, tt.src))
			assert.Len(t, a.GetDefinitions("x"), tt.want)
		})
	}
}

func TestIsCrossFileReference(t *testing.T) {
	runRule(t, IsCrossFileReference, []ruleCase{
		{name: "from_module", src: "from y import x", token: "y", want: true},
		{name: "from_imported_name", src: "from y import x", token: "x", want: false},
		{name: "dotted_head", src: "from a.b import c", token: "a", want: true},
		{name: "dotted_tail", src: "from a.b import c", token: "b", want: true},
		{name: "relative", src: "from .mod import x", token: "mod", want: true},
		{name: "import", src: "import os.path", token: "os", want: true},
		{name: "import_alias", src: "import y as x", token: "x", want: false},
		{name: "assignment", src: "x = y", token: "y", want: false},
	})
}

func TestGuessReferencePath(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		token string
		want  []string
		query string
	}{
		{
			name:  "module",
			src:   "from y import x",
			token: "y",
			want:  []string{"y.py", "y/__init__.py"},
			query: `find_spec("y")`,
		},
		{
			name:  "package_head",
			src:   "from a.b import c",
			token: "a",
			want:  []string{"a.py", "a/__init__.py"},
			query: `find_spec("a")`,
		},
		{
			name:  "package_tail",
			src:   "from a.b import c",
			token: "b",
			want:  []string{"a/b.py", "a/b/__init__.py"},
			query: `find_spec("a.b")`,
		},
		{
			name:  "relative",
			src:   "from .mod import x",
			token: "mod",
			want:  []string{"./mod.py", "./mod/__init__.py"},
		},
		{
			name:  "parent_relative",
			src:   "from ..pkg.mod import x",
			token: "mod",
			want:  []string{"../pkg/mod.py", "../pkg/mod/__init__.py"},
		},
		{
			name:  "parent_relative_head",
			src:   "from ..pkg.mod import x",
			token: "pkg",
			want:  []string{"../pkg.py", "../pkg/__init__.py"},
		},
		{
			name:  "plain_import_head",
			src:   "import os.path",
			token: "os",
			want:  []string{"os.py", "os/__init__.py"},
			query: `find_spec("os")`,
		},
		{
			name:  "plain_import",
			src:   "import os.path",
			token: "path",
			want:  []string{"os/path.py", "os/path/__init__.py"},
			query: `find_spec("os.path")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := contextOf(t, tt.src, tt.token, 0)
			assert.Equal(t, tt.want, GuessReferencePath(c))

			query := ReferencePathQuery(c)
			if tt.query == "" {
				assert.Empty(t, query)
				return
			}
			assert.Contains(t, query, tt.query)
			assert.Contains(t, query, `"path"`)
		})
	}
}

func TestIsAssignment(t *testing.T) {
	for _, op := range []string{"=", "+=", "-=", "//=", "**=", ":="} {
		assert.True(t, IsAssignment(tokens.Token{Value: op, Type: tokens.KindOperator}), op)
	}
	for _, op := range []string{"==", "<=", ">=", "!=", "+"} {
		assert.False(t, IsAssignment(tokens.Token{Value: op, Type: tokens.KindOperator}), op)
	}
	assert.False(t, IsAssignment(tokens.Token{Value: "=", Type: tokens.KindString}))
}

func TestGetDefinitions(t *testing.T) {
	src := `import os
from y import helper
def f(a):
    return a
x = 1
for x in range(3):
    pass
with open(p) as x:
    pass
x, z = 1, 2
x += 1
print(x)
`
	a := analyzer.New(Grammar(), lexer.NewProvider(context.Background(), lexer.Python, src))

	defs := a.GetDefinitions("x")
	require.Len(t, defs, 4)
	for _, d := range defs {
		assert.Equal(t, "x", d.Value)
	}
	assert.Less(t, defs[0].Offset, defs[1].Offset)

	assert.Len(t, a.GetDefinitions("f"), 1)
	assert.Len(t, a.GetDefinitions("os"), 1)
	assert.Len(t, a.GetDefinitions("helper"), 1)
	assert.Empty(t, a.GetDefinitions("y"))
	assert.Empty(t, a.GetDefinitions("print"))
	assert.Empty(t, a.GetDefinitions(""))
}

func TestSubscriptAndAttributeTargets(t *testing.T) {
	src := "a[i] = 1\nb.c = 2\nd[0], e.f = 3, 4\n"
	a := analyzer.New(Grammar(), lexer.NewProvider(context.Background(), lexer.Python, src))

	for _, name := range []string{"a", "i", "b", "c", "d", "e", "f"} {
		assert.Empty(t, a.GetDefinitions(name), name)
	}

	runRule(t, IsStandaloneAssignment, []ruleCase{
		{name: "subscripted", src: "a[i] = 1", token: "a", want: false},
		{name: "subscript_index", src: "a[i] = 1", token: "i", want: false},
		{name: "attribute_owner", src: "b.c = 2", token: "b", want: false},
	})
	runRule(t, IsTupleUnpacking, []ruleCase{
		{name: "subscripted_first", src: "d[0], x = 3, 4", token: "d", want: false},
		{name: "attribute_owner", src: "x, e.f = 3, 4", token: "e", want: false},
	})
}
