// Package languages selects the grammar for a buffer or a cell.
package languages

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/walteh/gotodef/pkg/analyzer"
	"github.com/walteh/gotodef/pkg/languages/python"
	"github.com/walteh/gotodef/pkg/languages/rlang"
	"github.com/walteh/gotodef/pkg/lexer"
)

// Default is used for unknown languages.
const Default = lexer.Python

// ForLanguage returns the grammar of a supported language.
func ForLanguage(lang lexer.Language) (*analyzer.Grammar, bool) {
	switch lang {
	case lexer.Python:
		return python.Grammar(), true
	case lexer.R:
		return rlang.Grammar(), true
	}
	return nil, false
}

// Choose maps a language name reported by an editor or kernel onto a grammar.
// Unknown names fall back to Python with a warning.
func Choose(ctx context.Context, name string) *analyzer.Grammar {
	if lang, ok := lexer.ParseLanguage(name); ok {
		g, _ := ForLanguage(lang)
		return g
	}
	zerolog.Ctx(ctx).Warn().Str("language", name).Msgf("language %q is not supported yet, falling back to %s", name, Default)
	g, _ := ForLanguage(Default)
	return g
}

// Supported lists the languages with a grammar.
func Supported() []lexer.Language {
	return []lexer.Language{lexer.Python, lexer.R}
}
