/*
Package introspect asks a live interpreter where a module or sourced file
really lives.

	Jumper --Query(code)--> Executor (process / JSON-RPC kernel bridge)
	   ^                        |
	   |                     stdout
	   +----- Result{Path, Line} | Result{Err} <-- Parse

Executors only run code and return what it printed. The snippets are built by
the language grammars and print one JSON object: {"path": ..., "line": ...}.
*/
package introspect

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gotodef/pkg/lexer"
)

var (
	ErrUnavailable     = errors.Base("no interpreter available")
	ErrUnexpectedShape = errors.Base("unexpected introspection output")
)

// Executor runs a snippet of source code and returns its standard output.
type Executor interface {
	Execute(ctx context.Context, lang lexer.Language, code string) (string, error)
}

// Result is either a resolved location (Path set) or a failure (Err set).
type Result struct {
	Path string
	// Line is 1-based; zero means unknown.
	Line int
	Err  error
}

func (r Result) OK() bool {
	return r.Err == nil && r.Path != ""
}

func failed(err error) Result {
	return Result{Err: err}
}

type payload struct {
	Path *string `json:"path"`
	Line int     `json:"line"`
}

// Parse reads the last JSON object printed by a snippet. Interpreters may
// print banners or warnings before it.
func Parse(stdout string) Result {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var p payload
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			return failed(errors.WrapWith(err, ErrUnexpectedShape))
		}
		if p.Path == nil || *p.Path == "" {
			return failed(errors.WithMessage(ErrUnexpectedShape, "no path in output"))
		}
		if p.Line < 0 {
			p.Line = 0
		}
		return Result{Path: *p.Path, Line: p.Line}
	}
	return failed(errors.WithMessage(ErrUnexpectedShape, "no JSON object in output"))
}

// Query runs code with exec and parses the answer. A nil executor or an empty
// snippet yields ErrUnavailable; timeouts and execution errors are returned
// in the result, never as a panic or a second return value.
func Query(ctx context.Context, exec Executor, lang lexer.Language, code string, timeout time.Duration) Result {
	if exec == nil || code == "" {
		return failed(ErrUnavailable)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	stdout, err := exec.Execute(ctx, lang, code)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("language", string(lang)).Msg("introspection query failed")
		return failed(errors.Errorf("executing introspection query: %w", err))
	}

	res := Parse(stdout)
	if res.Err != nil {
		zerolog.Ctx(ctx).Debug().Err(res.Err).Str("stdout", stdout).Msg("introspection query returned garbage")
	}
	return res
}
