package position_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/walteh/gotodef/pkg/position"
	"github.com/walteh/gotodef/pkg/tokens"
)

func TestOffsetToPlace(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		offset int
		unit   position.Unit
		want   position.Place
	}{
		{name: "empty_text", text: "", offset: 0, want: position.Place{Line: 0, Character: 0}},
		{name: "first_line", text: "a = 1\nx = a", offset: 2, want: position.Place{Line: 0, Character: 2}},
		{name: "second_line", text: "a = 1\nx = a", offset: 10, want: position.Place{Line: 1, Character: 4}},
		{name: "line_start", text: "a = 1\nx = a", offset: 6, want: position.Place{Line: 1, Character: 0}},
		{name: "clamped_high", text: "ab", offset: 40, want: position.Place{Line: 0, Character: 2}},
		{name: "clamped_low", text: "ab", offset: -3, want: position.Place{Line: 0, Character: 0}},
		{name: "bytes_count_utf8", text: "\u00e9 = 1", offset: 3, unit: position.Bytes, want: position.Place{Line: 0, Character: 3}},
		{name: "utf16_counts_code_units", text: "\u00e9 = 1", offset: 3, unit: position.UTF16, want: position.Place{Line: 0, Character: 2}},
		{name: "utf16_surrogates", text: "\U0001F600x", offset: 4, unit: position.UTF16, want: position.Place{Line: 0, Character: 2}},
		{name: "graphemes_combine", text: "e\u0301x", offset: 3, unit: position.Graphemes, want: position.Place{Line: 0, Character: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := position.NewMapper(tt.text, tt.unit)
			assert.Equal(t, tt.want, m.OffsetToPlace(tt.offset))
		})
	}
}

func TestPlaceToOffset(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		place position.Place
		unit  position.Unit
		want  int
	}{
		{name: "second_line", text: "a = 1\nx = a", place: position.Place{Line: 1, Character: 4}, want: 10},
		{name: "past_line_end", text: "a = 1\nx = a", place: position.Place{Line: 0, Character: 99}, want: 5},
		{name: "crlf_line_end", text: "ab\r\ncd", place: position.Place{Line: 0, Character: 99}, want: 2},
		{name: "past_last_line", text: "a\nb", place: position.Place{Line: 7}, want: 3},
		{name: "negative_line", text: "a\nb", place: position.Place{Line: -1, Character: 3}, want: 0},
		{name: "utf16", text: "\U0001F600x", place: position.Place{Line: 0, Character: 2}, unit: position.UTF16, want: 4},
		{name: "graphemes", text: "e\u0301x", place: position.Place{Line: 0, Character: 1}, unit: position.Graphemes, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := position.NewMapper(tt.text, tt.unit)
			assert.Equal(t, tt.want, m.PlaceToOffset(tt.place))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	text := "import os\nfor x in range(3):\n    print(x)\n"
	for _, unit := range []position.Unit{position.Bytes, position.UTF16, position.Graphemes} {
		m := position.NewMapper(text, unit)
		for offset := 0; offset <= len(text); offset++ {
			assert.Equal(t, offset, m.PlaceToOffset(m.OffsetToPlace(offset)), "unit %d offset %d", unit, offset)
		}
	}
}

func TestRawPosition(t *testing.T) {
	raw := position.FromToken(tokens.Token{Value: "abc", Type: tokens.KindVariable, Offset: 6})

	assert.Equal(t, "abc@6", raw.ID())
	assert.Equal(t, 9, raw.End())
	assert.True(t, raw.Contains(6))
	assert.True(t, raw.Contains(9))
	assert.False(t, raw.Contains(10))

	m := position.NewMapper("a = 1\nabc", position.Bytes)
	assert.Equal(t, position.Range{
		Start: position.Place{Line: 1, Character: 0},
		End:   position.Place{Line: 1, Character: 3},
	}, m.Range(raw))

	assert.Equal(t, "2:1", position.Place{Line: 1}.String())
}
