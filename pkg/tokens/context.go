package tokens

import (
	"strings"
	"sync"
)

const (
	openingBrackets = "([{"
	closingBrackets = ")]}"
)

// IsOpeningBracket reports whether v is one of ( [ {.
func IsOpeningBracket(v string) bool {
	return len(v) == 1 && strings.Contains(openingBrackets, v)
}

// IsClosingBracket reports whether v is one of ) ] }.
func IsClosingBracket(v string) bool {
	return len(v) == 1 && strings.Contains(closingBrackets, v)
}

// Sequence is an immutable snapshot of a token stream plus structure derived
// from it on first use (bracket nesting and statement boundaries).
type Sequence struct {
	toks []Token

	once      sync.Once
	enclosing []int // index of innermost unclosed opening bracket, or -1
	matching  []int // for brackets, index of the partner bracket, or -1
	statement []int // index of the first token of the statement
}

// NewSequence wraps toks without copying them.
func NewSequence(toks []Token) *Sequence {
	return &Sequence{toks: toks}
}

func (s *Sequence) Len() int {
	if s == nil {
		return 0
	}
	return len(s.toks)
}

func (s *Sequence) Tokens() []Token {
	if s == nil {
		return nil
	}
	return s.toks
}

// At returns a context for position i; it does not need to be in range.
func (s *Sequence) At(i int) Context {
	return Context{seq: s, index: i}
}

// Find returns the context of tok inside the sequence.
func (s *Sequence) Find(tok Token) Context {
	return s.At(IndexOf(s.Tokens(), tok))
}

func (s *Sequence) structure() {
	s.once.Do(func() {
		n := len(s.toks)
		s.enclosing = make([]int, n)
		s.matching = make([]int, n)
		s.statement = make([]int, n)

		var stack []int
		start := 0
		for i, t := range s.toks {
			s.matching[i] = -1
			if len(stack) > 0 {
				s.enclosing[i] = stack[len(stack)-1]
			} else {
				s.enclosing[i] = -1
			}

			if t.Type != KindString && t.Type != KindComment {
				switch {
				case IsOpeningBracket(t.Value):
					stack = append(stack, i)
				case IsClosingBracket(t.Value) && len(stack) > 0:
					open := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					s.matching[open] = i
					s.matching[i] = open
					// the closing bracket belongs to the same level as its opener
					s.enclosing[i] = s.enclosing[open]
				}
			}

			s.statement[i] = start
			if len(stack) == 0 && (t.IsLineBreak() || (t.Value == ";" && t.Type != KindString)) {
				start = i + 1
			}
		}
	})
}

// Context is a view of one position in a Sequence. The zero value and any
// position outside the sequence report Exists() == false, and every accessor
// on such a context degrades to an empty result instead of panicking.
type Context struct {
	seq   *Sequence
	index int
}

// NewContext builds a context for toks[index].
func NewContext(toks []Token, index int) Context {
	return NewSequence(toks).At(index)
}

func (c Context) Exists() bool {
	return c.seq != nil && c.index >= 0 && c.index < len(c.seq.toks)
}

func (c Context) Index() int {
	return c.index
}

func (c Context) Sequence() *Sequence {
	return c.seq
}

func (c Context) Token() Token {
	if !c.Exists() {
		return Token{}
	}
	return c.seq.toks[c.index]
}

func (c Context) Value() string {
	return c.Token().Value
}

func (c Context) Type() string {
	return c.Token().Type
}

func (c Context) Offset() int {
	return c.Token().Offset
}

// Is reports whether the token exists and has the given kind and value.
func (c Context) Is(kind, value string) bool {
	return c.Exists() && c.Type() == kind && c.Value() == value
}

// IsValue reports whether the token exists and has one of the given values,
// regardless of kind. Strings and comments never match.
func (c Context) IsValue(values ...string) bool {
	if !c.Exists() || c.Type() == KindString || c.Type() == KindComment {
		return false
	}
	v := c.Value()
	for _, want := range values {
		if v == want {
			return true
		}
	}
	return false
}

// IsName reports whether the token is an identifier-like token.
func (c Context) IsName() bool {
	switch c.Type() {
	case KindVariable, KindProperty, KindBuiltin, KindDef:
		return c.Exists()
	}
	return false
}

func (c Context) step(delta int, meaningful bool) Context {
	if c.seq == nil {
		return Context{}
	}
	i := c.index + delta
	for meaningful && i >= 0 && i < len(c.seq.toks) && c.seq.toks[i].IsBlank() {
		i += delta
	}
	return Context{seq: c.seq, index: i}
}

// Previous is the closest preceding token that is not blank.
func (c Context) Previous() Context {
	return c.step(-1, true)
}

// Next is the closest following token that is not blank.
func (c Context) Next() Context {
	return c.step(+1, true)
}

// SimplePrevious is the raw preceding token, blank or not.
func (c Context) SimplePrevious() Context {
	return c.step(-1, false)
}

// SimpleNext is the raw following token, blank or not.
func (c Context) SimpleNext() Context {
	return c.step(+1, false)
}

// Matching returns the partner of a bracket token; it does not exist for
// other tokens or for unbalanced brackets.
func (c Context) Matching() Context {
	if !c.Exists() {
		return Context{}
	}
	c.seq.structure()
	m := c.seq.matching[c.index]
	if m < 0 {
		return Context{}
	}
	return c.seq.At(m)
}

// SkipBracketsRight moves past a balanced bracket group starting at c and
// returns the first meaningful token after it. Other tokens return Next().
func (c Context) SkipBracketsRight() Context {
	if c.IsValue("(", "[", "{") {
		if m := c.Matching(); m.Exists() {
			return m.Next()
		}
		return Context{}
	}
	return c.Next()
}

// SkipBracketsLeft is the mirror of SkipBracketsRight.
func (c Context) SkipBracketsLeft() Context {
	if c.IsValue(")", "]", "}") {
		if m := c.Matching(); m.Exists() {
			return m.Previous()
		}
		return Context{}
	}
	return c.Previous()
}

// Enclosing returns the innermost unclosed opening bracket before c.
func (c Context) Enclosing() Context {
	if !c.Exists() {
		return Context{}
	}
	c.seq.structure()
	e := c.seq.enclosing[c.index]
	if e < 0 {
		return Context{}
	}
	return c.seq.At(e)
}

// StatementStart returns the first meaningful token of the statement
// containing c (c itself for a blank-only prefix). Statements end at
// semicolons and line breaks outside of brackets.
func (c Context) StatementStart() Context {
	if !c.Exists() {
		return Context{}
	}
	c.seq.structure()
	i := c.seq.statement[c.index]
	for i < c.index && c.seq.toks[i].IsBlank() {
		i++
	}
	return c.seq.At(i)
}

// SameStatement reports whether both contexts lie in one statement.
func (c Context) SameStatement(other Context) bool {
	if !c.Exists() || !other.Exists() || c.seq != other.seq {
		return false
	}
	c.seq.structure()
	return c.seq.statement[c.index] == c.seq.statement[other.index]
}

// TraverseLeft follows separator-joined segments (a.b.c) to the left and
// returns the leftmost segment. The separator must be directly adjacent.
func TraverseLeft(c Context, separator string) Context {
	for {
		sep := c.SimplePrevious()
		if !sep.Exists() || sep.Value() != separator || sep.Type() == KindString {
			return c
		}
		segment := sep.SimplePrevious()
		if !segment.IsName() {
			return c
		}
		c = segment
	}
}

// TraverseRight is the mirror of TraverseLeft.
func TraverseRight(c Context, separator string) Context {
	for {
		sep := c.SimpleNext()
		if !sep.Exists() || sep.Value() != separator || sep.Type() == KindString {
			return c
		}
		segment := sep.SimpleNext()
		if !segment.IsName() {
			return c
		}
		c = segment
	}
}
