// Package editor models the editable surfaces a jump works on: a single
// source file, or a notebook made of linked cells. Every surface is a list of
// Buffers in document order; a plain file is the one-cell case.
package editor

import (
	"context"
	"sync"

	"github.com/walteh/gotodef/pkg/lexer"
	"github.com/walteh/gotodef/pkg/position"
	"github.com/walteh/gotodef/pkg/tokens"
)

// CellKind tells code cells from prose cells.
type CellKind string

const (
	CellCode     CellKind = "code"
	CellMarkdown CellKind = "markdown"
)

// Buffer is one editable unit with its own token stream and cursor.
type Buffer struct {
	id       string
	kind     CellKind
	language lexer.Language
	unit     position.Unit

	mu        sync.RWMutex
	source    string
	effective lexer.Language
	magic     *lexer.CellMagic
	provider  tokens.Provider
	mapper    *position.Mapper

	selStart, selEnd int
	focused          bool
}

var _ tokens.Provider = (*Buffer)(nil)

// NewBuffer tokenizes source as a code cell of the given language.
func NewBuffer(ctx context.Context, id string, language lexer.Language, source string) *Buffer {
	b := &Buffer{id: id, kind: CellCode, language: language, unit: position.UTF16}
	b.Update(ctx, source)
	return b
}

// NewMarkdownBuffer holds prose; it never has tokens.
func NewMarkdownBuffer(id, source string) *Buffer {
	b := &Buffer{id: id, kind: CellMarkdown, unit: position.UTF16}
	b.source = source
	b.provider = tokens.SliceProvider(nil)
	b.mapper = position.NewMapper(source, b.unit)
	return b
}

// WithUnit changes what a character column counts and returns the buffer.
func (b *Buffer) WithUnit(unit position.Unit) *Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unit = unit
	b.mapper = position.NewMapper(b.source, unit)
	return b
}

// Update replaces the source and retokenizes. A leading language magic
// ("%%R") switches the cell to that language and is left out of the stream.
func (b *Buffer) Update(ctx context.Context, source string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.source = source
	b.mapper = position.NewMapper(source, b.unit)

	if b.kind == CellMarkdown {
		return
	}

	b.effective = b.language
	b.magic = nil

	body, base := source, 0
	if magic, ok := lexer.DetectCellMagic(source); ok {
		b.magic = &magic
		body, base = source[magic.BodyOffset:], magic.BodyOffset
		if magic.Language != "" {
			b.effective = magic.Language
		}
	}

	b.provider = lexer.NewProviderAt(ctx, b.effective, body, base)
}

func (b *Buffer) ID() string {
	return b.id
}

func (b *Buffer) Kind() CellKind {
	return b.kind
}

// Language is the language the cell is analyzed in, after magics.
func (b *Buffer) Language() lexer.Language {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.effective
}

// Magic returns the cell magic on the first line, if any.
func (b *Buffer) Magic() (lexer.CellMagic, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.magic == nil {
		return lexer.CellMagic{}, false
	}
	return *b.magic, true
}

func (b *Buffer) Source() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.source
}

// Tokens returns the current snapshot. Callers must not modify it.
func (b *Buffer) Tokens() []tokens.Token {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.provider.Tokens()
}

func (b *Buffer) TokenAt(offset int) (tokens.Token, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.provider.TokenAt(offset)
}

func (b *Buffer) OffsetToPosition(offset int) position.Place {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mapper.OffsetToPlace(offset)
}

func (b *Buffer) PositionToOffset(p position.Place) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mapper.PlaceToOffset(p)
}

// RangeOf returns the line/character extent of a token.
func (b *Buffer) RangeOf(tok tokens.Token) position.Range {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mapper.Range(position.FromToken(tok))
}

// SetSelection moves the cursor. Offsets are clamped to the source.
func (b *Buffer) SetSelection(start, end int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selStart, b.selEnd = clamp(start, len(b.source)), clamp(end, len(b.source))
}

func (b *Buffer) Selection() (start, end int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selStart, b.selEnd
}

func (b *Buffer) Focus() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.focused = true
}

func (b *Buffer) Blur() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.focused = false
}

func (b *Buffer) Focused() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.focused
}

func clamp(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}
