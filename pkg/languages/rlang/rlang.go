// Package rlang holds the definition rules for R scripts and R cells.
package rlang

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/walteh/gotodef/pkg/analyzer"
	"github.com/walteh/gotodef/pkg/lexer"
	"github.com/walteh/gotodef/pkg/tokens"
)

var grammar = &analyzer.Grammar{
	Language: lexer.R,
	Rules: []analyzer.Rule{
		{Name: "standalone assignment", Match: IsStandaloneAssignment},
		{Name: "import", Match: IsImport},
		{Name: "for loop", Match: IsForLoop},
	},
	IsAssignment: IsAssignment,
	CrossFile: analyzer.CrossFile{
		IsReference: IsCrossFileReference,
		GuessPaths:  GuessReferencePath,
		PathQuery:   ReferencePathQuery,
	},
}

// Grammar returns the R grammar.
func Grammar() *analyzer.Grammar {
	return grammar
}

// IsAssignment matches =, <-, <<-, -> and ->>.
func IsAssignment(t tokens.Token) bool {
	switch t.Type {
	case tokens.KindArrow:
		return true
	case tokens.KindOperator:
		return t.Value == "="
	}
	return false
}

// insideArguments reports whether c sits directly or indirectly in a call or
// index expression, where "=" names an argument.
func insideArguments(c tokens.Context) bool {
	for e := c.Enclosing(); e.Exists(); e = e.Enclosing() {
		if e.IsValue("(", "[") {
			return true
		}
	}
	return false
}

// IsStandaloneAssignment matches "x <- ...", "x <<- ...", "x = ..." and the
// rightward "... -> x" / "... ->> x".
func IsStandaloneAssignment(c tokens.Context) bool {
	next := c.Next()
	switch {
	case next.Is(tokens.KindArrow, "<-"), next.Is(tokens.KindArrow, "<<-"):
		return true
	case next.Is(tokens.KindOperator, "="):
		return !insideArguments(c)
	}
	prev := c.Previous()
	return prev.Is(tokens.KindArrow, "->") || prev.Is(tokens.KindArrow, "->>")
}

// IsImport matches library(x), require(x) and the names imported by
// import::from / import::here.
func IsImport(c tokens.Context) bool {
	if open := c.Previous(); open.IsValue("(") {
		fn := open.Previous()
		if fn.Is(tokens.KindVariable, "library") || fn.Is(tokens.KindVariable, "require") {
			return true
		}
	}
	return isImportFrom(c)
}

// importCall returns the opening bracket of the import::from or import::here
// call whose direct argument c is.
func importCall(c tokens.Context) (tokens.Context, bool) {
	open := c.Enclosing()
	if !open.IsValue("(") {
		return tokens.Context{}, false
	}
	fn := open.Previous()
	if !fn.Is(tokens.KindVariable, "from") && !fn.Is(tokens.KindVariable, "here") {
		return tokens.Context{}, false
	}
	sep := fn.SimplePrevious()
	if !sep.Is(tokens.KindOperator, "::") || sep.SimplePrevious().Value() != "import" {
		return tokens.Context{}, false
	}
	return open, true
}

// callArguments returns the first token of every top-level argument.
func callArguments(open tokens.Context) []tokens.Context {
	closing := open.Matching()
	var args []tokens.Context
	expectArg := true
	for n := open.Next(); n.Exists() && (!closing.Exists() || n.Index() < closing.Index()); n = n.Next() {
		if n.Enclosing().Index() != open.Index() {
			continue
		}
		if n.IsValue(",") {
			expectArg = true
			continue
		}
		if expectArg {
			args = append(args, n)
			expectArg = false
		}
	}
	return args
}

// isImportFrom matches the names of import::from(module, a, b),
// import::here(a, b, module) and either form with .from = module. The module
// and the values of other named arguments are never bound.
func isImportFrom(c tokens.Context) bool {
	open, ok := importCall(c)
	if !ok {
		return false
	}
	// argument names and argument values
	if c.Next().Is(tokens.KindOperator, "=") || c.Previous().Is(tokens.KindOperator, "=") {
		return false
	}

	args := callArguments(open)
	hasFrom := false
	for _, a := range args {
		if a.Value() == ".from" && a.Next().Is(tokens.KindOperator, "=") {
			hasFrom = true
		}
	}

	module := -1
	if !hasFrom {
		if open.Previous().Value() == "here" {
			module = lastPositional(args)
		} else {
			module = firstPositional(args)
		}
	}

	for i, a := range args {
		if a.Index() == c.Index() {
			return i != module
		}
	}
	return false
}

func firstPositional(args []tokens.Context) int {
	for i, a := range args {
		if !a.Next().Is(tokens.KindOperator, "=") {
			return i
		}
	}
	return -1
}

func lastPositional(args []tokens.Context) int {
	for i := len(args) - 1; i >= 0; i-- {
		if !args[i].Next().Is(tokens.KindOperator, "=") {
			return i
		}
	}
	return -1
}

// IsForLoop matches "for (x in ...)".
func IsForLoop(c tokens.Context) bool {
	open := c.Previous()
	return open.IsValue("(") &&
		open.Previous().Is(tokens.KindKeyword, "for") &&
		c.Next().Is(tokens.KindKeyword, "in")
}

// sourcePath returns the string argument of source("...") and its literal.
func sourcePath(c tokens.Context) (string, string, bool) {
	if c.Value() != "source" || !c.IsName() {
		return "", "", false
	}
	open := c.Next()
	if !open.IsValue("(") {
		return "", "", false
	}
	arg := open.Next()
	if arg.Type() != tokens.KindString {
		return "", "", false
	}
	path := unquote(arg.Value())
	if path == "" {
		return "", "", false
	}
	return path, arg.Value(), true
}

func unquote(literal string) string {
	if s, err := strconv.Unquote(literal); err == nil && strings.HasPrefix(literal, `"`) {
		return s
	}
	if len(literal) >= 2 && literal[0] == literal[len(literal)-1] && (literal[0] == '\'' || literal[0] == '"') {
		return literal[1 : len(literal)-1]
	}
	return ""
}

// IsCrossFileReference matches source("path") with a non-empty path.
func IsCrossFileReference(c tokens.Context) bool {
	_, _, ok := sourcePath(c)
	return ok
}

// GuessReferencePath returns the sourced path as written.
func GuessReferencePath(c tokens.Context) []string {
	path, _, ok := sourcePath(c)
	if !ok {
		return nil
	}
	return []string{path}
}

const pathQuery = `cat(sprintf('{"path": %%s, "line": 0}', encodeString(normalizePath(%s), quote = '"')))
`

// ReferencePathQuery resolves the sourced path against the session's
// working directory.
func ReferencePathQuery(c tokens.Context) string {
	_, literal, ok := sourcePath(c)
	if !ok {
		return ""
	}
	return fmt.Sprintf(pathQuery, literal)
}
