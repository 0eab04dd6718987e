/*
Package tokens defines the flat token stream the definition engine works on.

	Source text                    Rules
	     |                           ^
	     v                           |
	+----------+   []Token    +-------------+
	| Provider | -----------> |  Sequence   |
	+----------+              +-------------+
	                                 |
	                          Context{seq, i}
	                          (previous/next views)

Tokens are produced by a tokenizer (see @lexer) or by an editor and are never
mutated here. A Context is a cheap value pointing into a shared Sequence, so
chained traversal like c.Previous().Previous() never copies the token array.
*/
package tokens

import (
	"fmt"
	"sort"
)

// Kind tags shared by the built-in tokenizers and the language rules.
const (
	// KindBlank is carried by whitespace runs and line-break markers.
	KindBlank = ""

	KindVariable    = "variable"
	KindDef         = "def"
	KindProperty    = "property"
	KindKeyword     = "keyword"
	KindBuiltin     = "builtin"
	KindOperator    = "operator"
	KindArrow       = "operator arrow"
	KindPunctuation = "punctuation"
	KindString      = "string"
	KindComment     = "comment"
	KindNumber      = "number"
	KindAtom        = "atom"
	KindError       = "error"
)

// Token is one lexical unit: a literal value, a kind tag and a byte offset.
type Token struct {
	Value  string `json:"value"`
	Type   string `json:"type"`
	Offset int    `json:"offset"`
}

// IsLineBreak reports whether the token is a line-break marker.
func (t Token) IsLineBreak() bool {
	return t.Type == KindBlank && t.Value == ""
}

// IsBlank reports whether the token carries no meaning (whitespace or line break).
func (t Token) IsBlank() bool {
	return t.Type == KindBlank
}

// End returns the offset just past the token.
func (t Token) End() int {
	return t.Offset + len(t.Value)
}

func (t Token) String() string {
	return fmt.Sprintf("%q<%s>@%d", t.Value, t.Type, t.Offset)
}

// Provider is the source of tokens for one buffer or cell.
type Provider interface {
	// Tokens returns the tokens in ascending offset order.
	Tokens() []Token
	// TokenAt returns the token covering the given offset.
	TokenAt(offset int) (Token, bool)
}

// SliceProvider serves a fixed token slice.
type SliceProvider []Token

var _ Provider = SliceProvider(nil)

func (p SliceProvider) Tokens() []Token {
	return p
}

func (p SliceProvider) TokenAt(offset int) (Token, bool) {
	return TokenAt(p, offset)
}

// TokenAt finds the token covering offset. A zero-length token only covers
// its own offset; when two tokens touch, the one starting at offset wins.
func TokenAt(toks []Token, offset int) (Token, bool) {
	i := sort.Search(len(toks), func(i int) bool {
		return toks[i].Offset > offset
	})
	for j := i - 1; j >= 0; j-- {
		t := toks[j]
		if t.Offset == offset {
			return t, true
		}
		if t.Offset < offset {
			if offset < t.End() {
				return t, true
			}
			// clicking right after a name still selects the name
			if offset == t.End() && !t.IsBlank() {
				return t, true
			}
			return Token{}, false
		}
	}
	return Token{}, false
}

// IndexOf returns the position of the token with the same offset and value, or -1.
func IndexOf(toks []Token, tok Token) int {
	i := sort.Search(len(toks), func(i int) bool {
		return toks[i].Offset >= tok.Offset
	})
	for ; i < len(toks) && toks[i].Offset == tok.Offset; i++ {
		if toks[i].Value == tok.Value {
			return i
		}
	}
	return -1
}
