package lexer

import (
	plexer "github.com/alecthomas/participle/v2/lexer"

	"github.com/walteh/gotodef/pkg/tokens"
)

var rLexer = plexer.MustSimple([]plexer.SimpleRule{
	{Name: "Newline", Pattern: `\r?\n`},
	{Name: "Whitespace", Pattern: `[ \t\f]+`},
	{Name: "Comment", Pattern: `#[^\r\n]*`},
	{Name: "String", Pattern: `"(?:\\[\s\S]|[^"\\])*"?|'(?:\\[\s\S]|[^'\\])*'?`},
	{Name: "Backtick", Pattern: "`[^`]*`"},
	{Name: "Number", Pattern: `(?i)(?:0x[0-9a-f]+L?|(?:\d+(?:\.\d*)?|\.\d+)(?:e[+-]?\d+)?[Li]?)`},
	{Name: "Ident", Pattern: `[\p{L}.][\p{L}\p{Nd}._]*`},
	{Name: "Arrow", Pattern: `<<-|->>|<-|->`},
	{Name: "Operator", Pattern: `:::|::|%[^%\r\n]*%|\|>|==|!=|<=|>=|&&|\|\||[-+*/^<>=!&|~?$@:]`},
	{Name: "Punctuation", Pattern: `[()\[\]{},;]`},
	{Name: "Other", Pattern: `[\s\S]`},
})

var rKeywords = wordSet(`if else repeat while function for in next break`)

var rAtoms = wordSet(`TRUE FALSE NULL NA Inf NaN NA_integer_ NA_real_ NA_character_ NA_complex_`)

var rBuiltins = wordSet(`list quote bquote eval return call parse deparse`)

func classifyR(raw []plexer.Token, names map[plexer.TokenType]string) []tokens.Token {
	out := make([]tokens.Token, 0, len(raw))
	for _, t := range raw {
		switch names[t.Type] {
		case "Newline":
			out = append(out, blank(t, true))
		case "Whitespace":
			out = append(out, blank(t, false))
		case "Comment":
			out = append(out, tokens.Token{Value: t.Value, Type: tokens.KindComment, Offset: t.Pos.Offset})
		case "String":
			out = append(out, tokens.Token{Value: t.Value, Type: tokens.KindString, Offset: t.Pos.Offset})
		case "Number":
			out = append(out, tokens.Token{Value: t.Value, Type: tokens.KindNumber, Offset: t.Pos.Offset})
		case "Arrow":
			out = append(out, tokens.Token{Value: t.Value, Type: tokens.KindArrow, Offset: t.Pos.Offset})
		case "Operator":
			out = append(out, tokens.Token{Value: t.Value, Type: tokens.KindOperator, Offset: t.Pos.Offset})
		case "Punctuation":
			out = append(out, tokens.Token{Value: t.Value, Type: tokens.KindPunctuation, Offset: t.Pos.Offset})
		case "Backtick":
			out = append(out, tokens.Token{Value: t.Value, Type: tokens.KindVariable, Offset: t.Pos.Offset})
		case "Ident":
			out = append(out, tokens.Token{Value: t.Value, Type: rIdentKind(t.Value, out), Offset: t.Pos.Offset})
		default:
			out = append(out, tokens.Token{Value: t.Value, Type: tokens.KindError, Offset: t.Pos.Offset})
		}
	}
	return out
}

func rIdentKind(value string, before []tokens.Token) string {
	switch {
	case rKeywords[value]:
		return tokens.KindKeyword
	case rAtoms[value]:
		return tokens.KindAtom
	}
	if prev, ok := previousRaw(before); ok && prev.Type == tokens.KindOperator && (prev.Value == "$" || prev.Value == "@") {
		return tokens.KindProperty
	}
	if rBuiltins[value] {
		return tokens.KindBuiltin
	}
	return tokens.KindVariable
}
