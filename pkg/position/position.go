// Package position converts between byte offsets, which is what tokens carry,
// and the line/character places that editors speak.
package position

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/apparentlymart/go-textseg/v13/textseg"

	"github.com/walteh/gotodef/pkg/tokens"
)

// Place is a zero-based line and character.
type Place struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

func (p Place) String() string {
	return fmt.Sprintf("%d:%d", p.Line+1, p.Character+1)
}

type Range struct {
	Start Place `json:"start"`
	End   Place `json:"end"`
}

// Unit is what a character column counts.
type Unit int

const (
	// Bytes counts UTF-8 bytes.
	Bytes Unit = iota
	// UTF16 counts UTF-16 code units, the LSP default.
	UTF16
	// Graphemes counts user-perceived characters, what a person sees as a
	// column in a terminal or an editor.
	Graphemes
)

// RawPosition is a piece of text at a byte offset.
type RawPosition struct {
	Offset int
	Text   string
}

func NewBasicPosition(text string, offset int) RawPosition {
	return RawPosition{Text: text, Offset: offset}
}

// FromToken positions a token.
func FromToken(t tokens.Token) RawPosition {
	return RawPosition{Text: t.Value, Offset: t.Offset}
}

// ID returns a unique identifier for this position based on offset and text
func (p RawPosition) ID() string {
	return fmt.Sprintf("%s@%d", p.Text, p.Offset)
}

func (p RawPosition) Length() int {
	return len(p.Text)
}

func (p RawPosition) End() int {
	return p.Offset + p.Length()
}

// Contains reports whether offset falls inside the text, or directly after it.
func (p RawPosition) Contains(offset int) bool {
	return offset >= p.Offset && offset <= p.End()
}

func (p RawPosition) String() string {
	return p.ID()
}

// Mapper converts offsets of one text snapshot.
type Mapper struct {
	text  string
	unit  Unit
	lines []int // byte offset of the first byte of every line
}

func NewMapper(text string, unit Unit) *Mapper {
	lines := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, i+1)
		}
	}
	return &Mapper{text: text, unit: unit, lines: lines}
}

func (m *Mapper) Text() string {
	return m.text
}

func (m *Mapper) LineCount() int {
	return len(m.lines)
}

// lineEnd is the offset of the line terminator (or the end of the text).
func (m *Mapper) lineEnd(line int) int {
	if line+1 < len(m.lines) {
		end := m.lines[line+1] - 1
		if end > m.lines[line] && m.text[end-1] == '\r' {
			end--
		}
		return end
	}
	return len(m.text)
}

// OffsetToPlace clamps offset into the text.
func (m *Mapper) OffsetToPlace(offset int) Place {
	if offset < 0 {
		offset = 0
	}
	if offset > len(m.text) {
		offset = len(m.text)
	}
	line := sort.Search(len(m.lines), func(i int) bool { return m.lines[i] > offset }) - 1
	return Place{Line: line, Character: m.width(m.text[m.lines[line]:offset])}
}

// PlaceToOffset clamps lines to the text and characters to the line.
func (m *Mapper) PlaceToOffset(p Place) int {
	if p.Line < 0 {
		return 0
	}
	if p.Line >= len(m.lines) {
		return len(m.text)
	}
	start, end := m.lines[p.Line], m.lineEnd(p.Line)
	return start + m.advance(m.text[start:end], p.Character)
}

// Range converts the extent of raw.
func (m *Mapper) Range(raw RawPosition) Range {
	return Range{Start: m.OffsetToPlace(raw.Offset), End: m.OffsetToPlace(raw.End())}
}

func (m *Mapper) width(s string) int {
	switch m.unit {
	case UTF16:
		n := 0
		for _, r := range s {
			n += utf16Len(r)
		}
		return n
	case Graphemes:
		n := 0
		for data := []byte(s); len(data) > 0; n++ {
			adv, _, err := textseg.ScanGraphemeClusters(data, true)
			if err != nil || adv <= 0 {
				adv = 1
			}
			data = data[adv:]
		}
		return n
	default:
		return len(s)
	}
}

// advance returns the byte length of the first n units of line.
func (m *Mapper) advance(line string, n int) int {
	if n <= 0 {
		return 0
	}
	switch m.unit {
	case UTF16:
		off, count := 0, 0
		for off < len(line) && count < n {
			r, size := utf8.DecodeRuneInString(line[off:])
			count += utf16Len(r)
			off += size
		}
		return off
	case Graphemes:
		off := 0
		for i := 0; i < n && off < len(line); i++ {
			adv, _, err := textseg.ScanGraphemeClusters([]byte(line[off:]), true)
			if err != nil || adv <= 0 {
				adv = 1
			}
			off += adv
		}
		return off
	default:
		if n > len(line) {
			return len(line)
		}
		return n
	}
}

func utf16Len(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}
