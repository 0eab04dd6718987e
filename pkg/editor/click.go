package editor

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gotodef/pkg/tokens"
)

// KeyModifier is the key that must be held for a click to jump.
type KeyModifier string

const (
	Alt      KeyModifier = "Alt"
	Control  KeyModifier = "Control"
	Shift    KeyModifier = "Shift"
	Meta     KeyModifier = "Meta"
	AltGraph KeyModifier = "AltGraph"
)

// DefaultModifier is used when nothing is configured.
const DefaultModifier = Alt

func KeyModifiers() []KeyModifier {
	return []KeyModifier{Alt, Control, Shift, Meta, AltGraph}
}

// ParseKeyModifier is case insensitive and accepts the common short forms.
func ParseKeyModifier(s string) (KeyModifier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultModifier, nil
	case "alt", "option":
		return Alt, nil
	case "control", "ctrl":
		return Control, nil
	case "shift":
		return Shift, nil
	case "meta", "cmd", "command", "super":
		return Meta, nil
	case "altgraph", "altgr":
		return AltGraph, nil
	}
	return "", errors.Errorf("unknown modifier key %q, want one of %v", s, KeyModifiers())
}

// PrimaryButton is the main mouse button.
const PrimaryButton = 0

// ClickEvent is the modifier state of the mouse event that triggered a jump.
type ClickEvent struct {
	Button   int  `json:"button"`
	Alt      bool `json:"altKey"`
	Control  bool `json:"ctrlKey"`
	Shift    bool `json:"shiftKey"`
	Meta     bool `json:"metaKey"`
	AltGraph bool `json:"altGraphKey"`
}

// Activates reports whether the event should trigger a jump with the given
// modifier configured.
func (e ClickEvent) Activates(m KeyModifier) bool {
	if e.Button != PrimaryButton {
		return false
	}
	switch m {
	case Alt:
		return e.Alt
	case Control:
		return e.Control
	case Shift:
		return e.Shift
	case Meta:
		return e.Meta
	case AltGraph:
		return e.AltGraph
	}
	return false
}

// SelectToken resolves a click at offset to a token of p. label is the text
// the user saw under the pointer; when it is set and disagrees with the token
// stream, a variable token carrying the label is made up at the clicked
// offset so that the jump can still go ahead.
func SelectToken(ctx context.Context, p tokens.Provider, offset int, label string) (tokens.Token, bool) {
	tok, ok := p.TokenAt(offset)
	if ok && (label == "" || tok.Value == label) {
		return tok, true
	}
	if label == "" {
		return tokens.Token{}, false
	}

	zerolog.Ctx(ctx).Warn().
		Int("offset", offset).
		Str("label", label).
		Str("token", tok.Value).
		Msg("clicked text does not match the token stream, using the text")

	return tokens.Token{Value: label, Type: tokens.KindVariable, Offset: offset}, true
}

// SelectOccurrence picks the n-th (zero-based) token whose value is label.
// Surfaces that cannot map a click to an offset can still count how many
// identical labels precede the clicked one. A miss is logged and answered
// with a made-up variable token at offset 0.
func SelectOccurrence(ctx context.Context, p tokens.Provider, label string, n int) tokens.Token {
	seen := 0
	for _, tok := range p.Tokens() {
		if tok.Value != label {
			continue
		}
		if seen == n {
			return tok
		}
		seen++
	}

	zerolog.Ctx(ctx).Warn().
		Str("label", label).
		Int("occurrence", n).
		Int("found", seen).
		Msg("clicked text does not match the token stream, using the text")

	return tokens.Token{Value: label, Type: tokens.KindVariable}
}
