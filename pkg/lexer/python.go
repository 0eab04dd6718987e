package lexer

import (
	plexer "github.com/alecthomas/participle/v2/lexer"

	"github.com/walteh/gotodef/pkg/tokens"
)

var pythonLexer = plexer.MustSimple([]plexer.SimpleRule{
	{Name: "Continuation", Pattern: `\\\r?\n`},
	{Name: "Newline", Pattern: `\r?\n`},
	{Name: "Whitespace", Pattern: `[ \t\f]+`},
	{Name: "Comment", Pattern: `#[^\r\n]*`},
	{Name: "String", Pattern: `(?i:[rbuf]{0,2})(?:"""(?:\\[\s\S]|[^\\])*?"""|'''(?:\\[\s\S]|[^\\])*?'''|"(?:\\.|[^"\\\r\n])*"?|'(?:\\.|[^'\\\r\n])*'?)`},
	{Name: "Number", Pattern: `(?i)(?:0x[0-9a-f_]+|0o[0-7_]+|0b[01_]+|(?:\d[\d_]*(?:\.[\d_]*)?|\.\d[\d_]*)(?:e[+-]?\d+)?j?)`},
	{Name: "Ident", Pattern: `[\p{L}\p{Nl}_][\p{L}\p{Nl}\p{Mn}\p{Mc}\p{Nd}_]*`},
	{Name: "Operator", Pattern: `\*\*=|//=|>>=|<<=|->|:=|[-+*/%@&|^<>!=]=|\*\*|//|<<|>>|[-+*/%@&|^~<>=!?]`},
	{Name: "Punctuation", Pattern: `\.\.\.|[()\[\]{},:;.]`},
	{Name: "Other", Pattern: `[\s\S]`},
})

var pythonKeywords = wordSet(`
	False None True and as assert async await break class continue def del elif else
	except finally for from global if import in is lambda nonlocal not or pass raise
	return try while with yield`)

var pythonBuiltins = wordSet(`
	abs all any ascii bin bool breakpoint bytearray bytes callable chr classmethod compile
	complex delattr dict dir divmod enumerate eval exec filter float format frozenset
	getattr globals hasattr hash help hex id input int isinstance issubclass iter len
	list locals map max memoryview min next object oct open ord pow print property range
	repr reversed round set setattr slice sorted staticmethod str sum super tuple type
	vars zip __import__ NotImplemented Ellipsis __debug__`)

func classifyPython(raw []plexer.Token, names map[plexer.TokenType]string) []tokens.Token {
	out := make([]tokens.Token, 0, len(raw))
	for _, t := range raw {
		switch names[t.Type] {
		case "Newline":
			out = append(out, blank(t, true))
		case "Continuation", "Whitespace":
			out = append(out, blank(t, false))
		case "Comment":
			out = append(out, tokens.Token{Value: t.Value, Type: tokens.KindComment, Offset: t.Pos.Offset})
		case "String":
			out = append(out, tokens.Token{Value: t.Value, Type: tokens.KindString, Offset: t.Pos.Offset})
		case "Number":
			out = append(out, tokens.Token{Value: t.Value, Type: tokens.KindNumber, Offset: t.Pos.Offset})
		case "Operator":
			out = append(out, tokens.Token{Value: t.Value, Type: tokens.KindOperator, Offset: t.Pos.Offset})
		case "Punctuation":
			out = append(out, tokens.Token{Value: t.Value, Type: tokens.KindPunctuation, Offset: t.Pos.Offset})
		case "Ident":
			out = append(out, tokens.Token{Value: t.Value, Type: pythonIdentKind(t.Value, out), Offset: t.Pos.Offset})
		default:
			out = append(out, tokens.Token{Value: t.Value, Type: tokens.KindError, Offset: t.Pos.Offset})
		}
	}
	return out
}

func pythonIdentKind(value string, before []tokens.Token) string {
	if pythonKeywords[value] {
		return tokens.KindKeyword
	}
	if prev, ok := previousMeaningful(before); ok && prev.Type == tokens.KindKeyword && (prev.Value == "def" || prev.Value == "class") {
		return tokens.KindDef
	}
	if prev, ok := previousRaw(before); ok && prev.Type == tokens.KindPunctuation && prev.Value == "." {
		return tokens.KindProperty
	}
	if pythonBuiltins[value] {
		return tokens.KindBuiltin
	}
	return tokens.KindVariable
}
