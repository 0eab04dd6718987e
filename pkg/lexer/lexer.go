// Package lexer turns Python and R source into the flat token stream consumed
// by the definition rules. The raw lexing is done with participle rule tables;
// a second pass assigns the kind tags (def, property, keyword, ...) that need
// a look at the neighbours.
package lexer

import (
	"context"
	"strings"

	plexer "github.com/alecthomas/participle/v2/lexer"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gotodef/pkg/tokens"
)

// Language identifies one of the supported tokenizers.
type Language string

const (
	Python Language = "python"
	R      Language = "r"
)

// ParseLanguage maps editor/kernel language names onto a Language.
func ParseLanguage(name string) (Language, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "python", "python2", "python3", "ipython", "ipython2", "ipython3", "py":
		return Python, true
	case "r", "rlang", "r-lang":
		return R, true
	default:
		return "", false
	}
}

type classifier func(raw []plexer.Token, names map[plexer.TokenType]string) []tokens.Token

type definition struct {
	lexer    *plexer.StatefulDefinition
	names    map[plexer.TokenType]string
	classify classifier
}

var definitions = map[Language]*definition{
	Python: {lexer: pythonLexer, names: plexer.SymbolsByRune(pythonLexer), classify: classifyPython},
	R:      {lexer: rLexer, names: plexer.SymbolsByRune(rLexer), classify: classifyR},
}

// Tokenize lexes text in the given language.
func Tokenize(lang Language, text string) ([]tokens.Token, error) {
	def, ok := definitions[lang]
	if !ok {
		return nil, errors.Errorf("no tokenizer for language %q", lang)
	}

	lex, err := def.lexer.LexString("", text)
	if err != nil {
		return nil, errors.Errorf("lexing %s source: %w", lang, err)
	}

	raw, err := plexer.ConsumeAll(lex)
	if err != nil {
		return nil, errors.Errorf("consuming %s tokens: %w", lang, err)
	}

	// drop EOF
	if n := len(raw); n > 0 && raw[n-1].EOF() {
		raw = raw[:n-1]
	}

	return def.classify(raw, def.names), nil
}

// Provider is a tokens.Provider over a snapshot of source text.
type Provider struct {
	lang   Language
	offset int
	toks   []tokens.Token
}

var _ tokens.Provider = (*Provider)(nil)

// NewProvider tokenizes text eagerly. Lexing failures are logged and leave an
// empty stream; the rules then simply find nothing.
func NewProvider(ctx context.Context, lang Language, text string) *Provider {
	return NewProviderAt(ctx, lang, text, 0)
}

// NewProviderAt tokenizes text that starts at byte offset base of its buffer,
// shifting all offsets so they stay relative to the buffer.
func NewProviderAt(ctx context.Context, lang Language, text string, base int) *Provider {
	toks, err := Tokenize(lang, text)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("language", string(lang)).Msg("tokenizing source")
		toks = nil
	}
	if base != 0 {
		for i := range toks {
			toks[i].Offset += base
		}
	}
	return &Provider{lang: lang, offset: base, toks: toks}
}

func (p *Provider) Language() Language {
	return p.lang
}

func (p *Provider) Tokens() []tokens.Token {
	return p.toks
}

func (p *Provider) TokenAt(offset int) (tokens.Token, bool) {
	return tokens.TokenAt(p.toks, offset)
}

// blank converts whitespace and line breaks; everything else keeps its value.
func blank(t plexer.Token, lineBreak bool) tokens.Token {
	if lineBreak {
		return tokens.Token{Value: "", Type: tokens.KindBlank, Offset: t.Pos.Offset}
	}
	return tokens.Token{Value: t.Value, Type: tokens.KindBlank, Offset: t.Pos.Offset}
}

// previousMeaningful returns the last non-blank token already emitted.
func previousMeaningful(out []tokens.Token) (tokens.Token, bool) {
	for i := len(out) - 1; i >= 0; i-- {
		if !out[i].IsBlank() {
			return out[i], true
		}
	}
	return tokens.Token{}, false
}

// previousRaw returns the last emitted token, blank or not.
func previousRaw(out []tokens.Token) (tokens.Token, bool) {
	if len(out) == 0 {
		return tokens.Token{}, false
	}
	return out[len(out)-1], true
}

func wordSet(words string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(words) {
		set[w] = true
	}
	return set
}
