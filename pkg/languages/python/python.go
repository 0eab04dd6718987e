// Package python holds the definition rules for Python source and IPython
// notebooks.
package python

import (
	"fmt"
	"strings"

	"github.com/walteh/gotodef/pkg/analyzer"
	"github.com/walteh/gotodef/pkg/lexer"
	"github.com/walteh/gotodef/pkg/tokens"
)

// storeMagicLookback bounds how far back IsStoreMagic searches for the
// "%store -r" prefix.
const storeMagicLookback = 16

var grammar = &analyzer.Grammar{
	Language:       lexer.Python,
	DefinitionKind: tokens.KindDef,
	Rules: []analyzer.Rule{
		{Name: "standalone assignment", Match: IsStandaloneAssignment},
		{Name: "import", Match: IsImport},
		{Name: "with statement", Match: IsWithStatement},
		{Name: "for loop", Match: IsForLoopOrComprehension},
		{Name: "tuple unpacking", Match: IsTupleUnpacking},
		{Name: "store magic", Match: IsStoreMagic},
	},
	IsAssignment: IsAssignment,
	CrossFile: analyzer.CrossFile{
		IsReference: IsCrossFileReference,
		GuessPaths:  GuessReferencePath,
		PathQuery:   ReferencePathQuery,
	},
}

// Grammar returns the Python grammar.
func Grammar() *analyzer.Grammar {
	return grammar
}

var assignmentOperators = map[string]bool{
	"=": true, ":=": true,
	"+=": true, "-=": true, "*=": true, "/=": true, "//=": true, "%=": true, "@=": true,
	"**=": true, "&=": true, "|=": true, "^=": true, ">>=": true, "<<=": true,
}

// IsAssignment reports whether t binds or rebinds a name. Comparisons such as
// == and <= are not assignments.
func IsAssignment(t tokens.Token) bool {
	return t.Type == tokens.KindOperator && assignmentOperators[t.Value]
}

// IsStandaloneAssignment matches "x = ..." and "x: T = ...", but not keyword
// arguments, lambda defaults or augmented assignment which only rebinds an
// existing name.
func IsStandaloneAssignment(c tokens.Context) bool {
	if c.Enclosing().Exists() {
		return false
	}
	next := c.Next()
	switch {
	case next.Is(tokens.KindOperator, "="):
		return !isLambdaParameter(c)
	case next.Is(tokens.KindPunctuation, ":"):
		return isAnnotatedAssignment(c, next)
	}
	return false
}

// isLambdaParameter reports whether c sits between "lambda" and its colon.
func isLambdaParameter(c tokens.Context) bool {
	start := c.StatementStart()
	for p := c.Previous(); p.Exists() && p.Index() >= start.Index(); p = p.Previous() {
		switch {
		case p.Is(tokens.KindPunctuation, ":"):
			return false
		case p.Is(tokens.KindKeyword, "lambda"):
			return true
		}
	}
	return false
}

// isAnnotatedAssignment matches "x: T = ..." at the start of a statement. A
// bare annotation without a value binds nothing.
func isAnnotatedAssignment(c, colon tokens.Context) bool {
	if c.StatementStart().Index() != c.Index() {
		return false
	}
	for n := colon.Next(); n.Exists() && n.SameStatement(c); n = n.SkipBracketsRight() {
		if n.Is(tokens.KindOperator, "=") {
			return true
		}
	}
	return false
}

// IsImport matches names bound by import statements:
//
//	import x
//	import a.b, x
//	from y import x
//	from y import (a,
//	    x)
//	import y as x
func IsImport(c tokens.Context) bool {
	// the module of "import x as y" is not bound
	if c.Next().Is(tokens.KindKeyword, "as") {
		return false
	}
	// nor the trailing segments of "import a.b"
	if c.SimplePrevious().IsValue(".") {
		return false
	}

	start := c.StatementStart()
	for p := c.Previous(); p.Exists() && p.Index() >= start.Index(); p = p.Previous() {
		switch {
		case p.Is(tokens.KindKeyword, "import"):
			return true
		case p.IsValue(",", "(", "."), p.IsName(), p.Is(tokens.KindKeyword, "as"):
			continue
		default:
			return false
		}
	}
	return false
}

// IsWithStatement matches the alias of "with ... as x" and "except ... as x".
func IsWithStatement(c tokens.Context) bool {
	return c.Previous().Is(tokens.KindKeyword, "as")
}

func isTargetPart(c tokens.Context) bool {
	return c.IsName() || c.IsValue(",", "(", ")", "[", "]")
}

// IsForLoopOrComprehension matches loop targets, including tuple targets:
//
//	for x in ...
//	for i, (k, v) in ...
//	[... for x in ...]
func IsForLoopOrComprehension(c tokens.Context) bool {
	start := c.StatementStart()

	left := c.Previous()
	for isTargetPart(left) && left.Index() >= start.Index() {
		left = left.Previous()
	}
	if !left.Is(tokens.KindKeyword, "for") {
		return false
	}

	right := c.Next()
	for isTargetPart(right) {
		right = right.Next()
	}
	return right.Is(tokens.KindKeyword, "in")
}

// opensCallOrSubscript reports whether an opening bracket belongs to a call or
// a subscript rather than to a tuple or list display.
func opensCallOrSubscript(open tokens.Context) bool {
	p := open.Previous()
	if p.IsName() || p.IsValue(")", "]", "}") || p.Type() == tokens.KindString {
		return true
	}
	return false
}

// IsTupleUnpacking matches every name of an unpacking target list such as
// "a, b = ..." or "x, (y, z) = ...", which may span lines inside brackets.
//
// Starting after the token the walk alternates between expecting a comma and
// expecting a target. Brackets adjust the depth without toggling the
// expectation. An "=" at depth zero or below ends the walk successfully.
func IsTupleUnpacking(c tokens.Context) bool {
	levels := 0
	for e := c.Enclosing(); e.Exists(); e = e.Enclosing() {
		if !e.IsValue("(", "[") || opensCallOrSubscript(e) {
			return false
		}
		levels++
	}

	depth := 0
	commaExpected := true
	for n := c.SimpleNext(); n.Exists(); n = n.SimpleNext() {
		t := n.Token()
		if t.IsLineBreak() {
			if levels+depth > 0 {
				continue
			}
			return false
		}
		switch {
		case t.IsBlank(), t.Type == tokens.KindComment:
			continue
		case n.IsValue("(", "["):
			depth++
		case n.IsValue(")", "]"):
			depth--
		case n.Is(tokens.KindOperator, "="):
			return depth <= 0
		case !commaExpected && n.Is(tokens.KindOperator, "*"):
			// starred target
			continue
		case commaExpected && !n.IsValue(","):
			return false
		default:
			commaExpected = !commaExpected
		}
	}
	return false
}

// IsStoreMagic matches names restored with "%store -r a b" at the start of a
// line.
func IsStoreMagic(c tokens.Context) bool {
	// collect the meaningful tokens between the line start and c, nearest first
	var line []tokens.Context
	p := c.SimplePrevious()
	for ; p.Exists() && !p.Token().IsLineBreak(); p = p.SimplePrevious() {
		if p.Token().IsBlank() {
			continue
		}
		if len(line) == storeMagicLookback {
			return false
		}
		line = append(line, p)
	}

	// %, store, -, r, names...
	if len(line) < 4 {
		return false
	}
	n := len(line)
	pct, store, dash, flag := line[n-1], line[n-2], line[n-3], line[n-4]
	if !pct.Is(tokens.KindOperator, "%") || store.Value() != "store" || store.Index() != pct.Index()+1 {
		return false
	}
	if !dash.Is(tokens.KindOperator, "-") || flag.Value() != "r" || flag.Index() != dash.Index()+1 {
		return false
	}
	for _, name := range line[:n-4] {
		if name.Type() != tokens.KindVariable {
			return false
		}
	}
	return true
}

// importStatement returns the statement keyword of an import.
func importStatement(c tokens.Context) string {
	start := c.StatementStart()
	switch {
	case start.Is(tokens.KindKeyword, "from"):
		return "from"
	case start.Is(tokens.KindKeyword, "import"):
		return "import"
	}
	return ""
}

// IsCrossFileReference matches the module path of an import statement:
// "y" and "a.b" in "from y import x", "from .a.b import c" and "import a.b".
func IsCrossFileReference(c tokens.Context) bool {
	if !c.IsName() {
		return false
	}
	switch importStatement(c) {
	case "from":
		last := tokens.TraverseRight(c, ".")
		return last.Next().Is(tokens.KindKeyword, "import")
	case "import":
		// "import y as x": x is an alias, not a module
		return !c.Previous().Is(tokens.KindKeyword, "as")
	}
	return false
}

// modulePath returns the dotted segments of the module path up to and
// including c, so "a" in "a.b" names package a. It also returns the number of
// leading relative-import dots.
func modulePath(c tokens.Context) ([]string, int) {
	first := tokens.TraverseLeft(c, ".")

	var segments []string
	for s := first; s.Exists() && s.Index() <= c.Index(); s = s.SimpleNext() {
		if s.IsName() {
			segments = append(segments, s.Value())
		}
	}

	dots := 0
	if importStatement(c) == "from" {
		for d := first.SimplePrevious(); d.IsValue(".", "..."); d = d.SimplePrevious() {
			dots += len(d.Value())
		}
	}
	return segments, dots
}

// GuessReferencePath proposes "a/b.py" and "a/b/__init__.py" for module a.b.
// A single relative dot becomes "./", every further dot one more "../".
func GuessReferencePath(c tokens.Context) []string {
	segments, dots := modulePath(c)
	if len(segments) == 0 {
		return nil
	}

	prefix := ""
	switch {
	case dots == 1:
		prefix = "./"
	case dots > 1:
		prefix = strings.Repeat("../", dots-1)
	}
	base := prefix + strings.Join(segments, "/")
	return []string{base + ".py", base + "/__init__.py"}
}

const pathQuery = `import importlib.util as _gotodef_util, json as _gotodef_json
_gotodef_spec = _gotodef_util.find_spec(%q)
print(_gotodef_json.dumps({"path": getattr(_gotodef_spec, "origin", None), "line": 0}))
`

// ReferencePathQuery asks the interpreter where it would load the module
// from. Relative imports depend on the importing file and are left to path
// guessing.
func ReferencePathQuery(c tokens.Context) string {
	segments, dots := modulePath(c)
	if len(segments) == 0 || dots > 0 {
		return ""
	}
	return fmt.Sprintf(pathQuery, strings.Join(segments, "."))
}
