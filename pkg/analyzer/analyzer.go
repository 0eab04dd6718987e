/*
Package analyzer decides which occurrences of a name are definitions.

	        Grammar (per language)
	   +-----------------------------+
	   | DefinitionKind   "def"      |
	   | Rules  [assignment, import, |
	   |         as, for, tuple ...] |
	   | IsAssignment                |
	   | CrossFile                   |
	   +-----------------------------+
	                 |
	                 v
	   Analyzer{grammar, provider} --GetDefinitions(name)--> []Token

A token of the grammar's definition kind is always a definition. A variable
token is a definition when the first matching rule says so; rules run in the
order they are declared and stop at the first match. Every other kind is a
plain reference.
*/
package analyzer

import (
	"strings"
	"unicode"

	"github.com/walteh/gotodef/pkg/lexer"
	"github.com/walteh/gotodef/pkg/tokens"
)

// RuleFunc inspects the neighbourhood of one token.
type RuleFunc func(c tokens.Context) bool

// Rule is a named definition predicate.
type Rule struct {
	Name  string
	Match RuleFunc
}

// CrossFile recognises references to other files.
type CrossFile struct {
	// IsReference reports whether the token names another file or module.
	IsReference RuleFunc
	// GuessPaths returns candidate file paths, most likely first.
	GuessPaths func(c tokens.Context) []string
	// PathQuery returns source code which, run by a live interpreter,
	// prints a JSON object {"path": ..., "line": ...}. Empty when the
	// reference cannot be resolved that way.
	PathQuery func(c tokens.Context) string
}

// Grammar is the closed set of per-language behaviour the engine needs.
type Grammar struct {
	Language lexer.Language
	// DefinitionKind tags tokens that always introduce a name, empty for none.
	DefinitionKind string
	Rules          []Rule
	// IsAssignment identifies assignment operators.
	IsAssignment func(t tokens.Token) bool
	CrossFile    CrossFile
}

// Analyzer applies a Grammar to the tokens of one buffer or cell. It keeps
// the last token snapshot it was given and nothing else.
type Analyzer struct {
	grammar  *Grammar
	provider tokens.Provider
	seq      *tokens.Sequence
}

func New(grammar *Grammar, provider tokens.Provider) *Analyzer {
	a := &Analyzer{grammar: grammar, provider: provider}
	a.Refresh()
	return a
}

func (a *Analyzer) Grammar() *Grammar {
	return a.grammar
}

func (a *Analyzer) Language() lexer.Language {
	return a.grammar.Language
}

// Refresh takes a new token snapshot from the provider.
func (a *Analyzer) Refresh() *tokens.Sequence {
	var toks []tokens.Token
	if a.provider != nil {
		toks = a.provider.Tokens()
	}
	a.seq = tokens.NewSequence(toks)
	return a.seq
}

// Sequence is the current token snapshot.
func (a *Analyzer) Sequence() *tokens.Sequence {
	return a.seq
}

// ContextOf locates tok in the current snapshot. The context does not exist
// when the token is not part of it.
func (a *Analyzer) ContextOf(tok tokens.Token) tokens.Context {
	return a.seq.Find(tok)
}

// NameMatches is an exact, case-sensitive comparison. Empty and
// whitespace-only names never match.
func NameMatches(name string, tok tokens.Token) bool {
	if strings.TrimFunc(name, unicode.IsSpace) == "" {
		return false
	}
	return tok.Value == name
}

// GetDefinitions re-reads the tokens and returns every definition of name in
// document order.
func (a *Analyzer) GetDefinitions(name string) []tokens.Token {
	seq := a.Refresh()
	var out []tokens.Token
	for i, tok := range seq.Tokens() {
		if NameMatches(name, tok) && a.IsDefinition(tok, i) {
			out = append(out, tok)
		}
	}
	return out
}

// IsDefinition classifies the token at index i of the current snapshot.
func (a *Analyzer) IsDefinition(tok tokens.Token, i int) bool {
	_, ok := a.MatchingRule(tok, i)
	return ok
}

// MatchingRule returns the name of the rule that classified the token as a
// definition.
func (a *Analyzer) MatchingRule(tok tokens.Token, i int) (string, bool) {
	if a.grammar.DefinitionKind != "" && tok.Type == a.grammar.DefinitionKind {
		return "definition kind", true
	}
	if tok.Type != tokens.KindVariable {
		return "", false
	}
	c := a.seq.At(i)
	if !c.Exists() {
		return "", false
	}
	for _, rule := range a.grammar.Rules {
		if rule.Match(c) {
			return rule.Name, true
		}
	}
	return "", false
}

// IsTokenInSameAssignmentExpression reports whether tested and origin belong
// to one unterminated assignment, as the two a's of "a = a + 1" do.
//
// Only the first assignment operator between the tokens matters. A statement
// terminator is a semicolon or a line break that is not nested inside
// brackets opened within the span.
func (a *Analyzer) IsTokenInSameAssignmentExpression(tested, origin tokens.Token) bool {
	lo, hi := tested.Offset, origin.Offset
	if lo > hi {
		lo, hi = hi, lo
	}

	var between []tokens.Token
	for _, t := range a.seq.Tokens() {
		if t.Offset > lo && t.Offset < hi {
			between = append(between, t)
		}
	}

	firstAssignment := -1
	for _, t := range between {
		if t.Type != tokens.KindString && t.Type != tokens.KindComment && a.grammar.IsAssignment(t) {
			firstAssignment = t.Offset
			break
		}
	}
	if firstAssignment < 0 {
		return false
	}

	opened := 0
	for _, t := range between {
		if t.Type == tokens.KindString || t.Type == tokens.KindComment {
			continue
		}
		switch {
		case tokens.IsOpeningBracket(t.Value):
			opened++
			continue
		case tokens.IsClosingBracket(t.Value):
			opened--
			continue
		}
		terminator := t.IsLineBreak() || t.Value == ";"
		// a closing bracket matching one opened before the span is fine too
		if terminator && opened <= 0 && t.Offset > firstAssignment {
			return false
		}
	}

	return true
}

// IsCrossFileReference reports whether the token refers to another file.
func (a *Analyzer) IsCrossFileReference(c tokens.Context) bool {
	if a.grammar.CrossFile.IsReference == nil || !c.Exists() {
		return false
	}
	return a.grammar.CrossFile.IsReference(c)
}

// GuessReferencePath returns candidate paths for a cross-file reference.
func (a *Analyzer) GuessReferencePath(c tokens.Context) []string {
	if a.grammar.CrossFile.GuessPaths == nil || !c.Exists() {
		return nil
	}
	return a.grammar.CrossFile.GuessPaths(c)
}

// ReferencePathQuery returns the introspection snippet for a cross-file
// reference, or "" when none applies.
func (a *Analyzer) ReferencePathQuery(c tokens.Context) string {
	if a.grammar.CrossFile.PathQuery == nil || !c.Exists() {
		return ""
	}
	return a.grammar.CrossFile.PathQuery(c)
}
