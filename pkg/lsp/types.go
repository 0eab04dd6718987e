package lsp

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/walteh/gotodef/pkg/editor"
	"github.com/walteh/gotodef/pkg/position"
)

// Language server protocol types, see
// https://microsoft.github.io/language-server-protocol/
// Only the parts the server speaks are declared.

// MessageType represents the type of a message
type MessageType int

const (
	Error      MessageType = 1
	Warning    MessageType = 2
	Info       MessageType = 3
	Debug      MessageType = 4
	Trace      MessageType = 5
	Dependency MessageType = 6
	Unknown    MessageType = 7
)

func (mt MessageType) String() string {
	switch mt {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	case Debug:
		return "debug"
	case Trace:
		return "trace"
	case Dependency:
		return "dependency"
	default:
		return "unknown"
	}
}

// LogMessageParams represents the parameters for a window/logMessage notification
type LogMessageParams struct {
	Type    MessageType    `json:"type"`
	Message string         `json:"message"`
	Source  string         `json:"source,omitempty"`
	Raw     string         `json:"raw,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
	Time    string         `json:"time,omitempty"`
}

func ParseMessageTypeFromZerolog(level string) MessageType {
	zlgLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return Unknown
	}
	switch zlgLevel {
	case zerolog.InfoLevel:
		return Info
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return Error
	case zerolog.WarnLevel:
		return Warning
	case zerolog.DebugLevel:
		return Debug
	case zerolog.TraceLevel:
		return Trace
	default:
		return Unknown
	}
}

type InitializeParams struct {
	ProcessID             int             `json:"processId,omitempty"`
	RootURI               string          `json:"rootUri"`
	InitializationOptions json.RawMessage `json:"initializationOptions,omitempty"`
}

// InitializationOptions lets the client override the configured modifier.
type InitializationOptions struct {
	ModifierKey string `json:"modifierKey,omitempty"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type ServerCapabilities struct {
	TextDocumentSync   TextDocumentSyncOptions `json:"textDocumentSync"`
	DefinitionProvider bool                    `json:"definitionProvider"`
	Experimental       *ExperimentalOptions    `json:"experimental,omitempty"`
}

// TextDocumentSyncKind values.
const (
	SyncNone        = 0
	SyncFull        = 1
	SyncIncremental = 2
)

type TextDocumentSyncOptions struct {
	OpenClose bool `json:"openClose"`
	Change    int  `json:"change"`
}

// ExperimentalOptions advertises the gotodef/* methods.
type ExperimentalOptions struct {
	Jump        bool   `json:"gotodefJump"`
	JumpBack    bool   `json:"gotodefJumpBack"`
	ModifierKey string `json:"modifierKey"`
}

type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

type VersionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
	// Cell selects the notebook cell the changes apply to.
	Cell int `json:"cell,omitempty"`
}

type TextDocumentContentChangeEvent struct {
	Range *position.Range `json:"range,omitempty"`
	Text  string          `json:"text"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     position.Place         `json:"position"`
	// Cell selects the notebook cell Position is in.
	Cell int `json:"cell,omitempty"`
}

type DefinitionParams = TextDocumentPositionParams

type Location struct {
	URI   string         `json:"uri"`
	Range position.Range `json:"range"`
	// Cell is the notebook cell of Range.
	Cell int `json:"cell,omitempty"`
}

// JumpParams is a click on a token.
type JumpParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Cell         int                    `json:"cell"`
	Position     position.Place         `json:"position"`
	// Label is the text under the pointer, used when it disagrees with the
	// token stream.
	Label string            `json:"label,omitempty"`
	Event editor.ClickEvent `json:"event"`
}

type JumpResult struct {
	// Activated is false when the click was not a jump gesture.
	Activated bool      `json:"activated"`
	Outcome   string    `json:"outcome,omitempty"`
	Location  *Location `json:"location,omitempty"`
}

type JumpBackParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}
