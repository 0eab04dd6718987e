package introspect

import (
	"context"
	"io"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/rs/xid"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gotodef/pkg/lexer"
)

// ExecuteMethod is the JSON-RPC method a kernel bridge must serve.
const ExecuteMethod = "kernel/execute"

type ExecuteParams struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Code     string `json:"code"`
}

type ExecuteResult struct {
	Stdout string `json:"stdout"`
	// Error is set when the kernel reported an exception.
	Error string `json:"error,omitempty"`
}

// RPCExecutor sends snippets to a running kernel (a notebook server or a
// long-lived REPL) over JSON-RPC, so that the answer reflects the live
// session rather than a fresh interpreter.
type RPCExecutor struct {
	client *jrpc2.Client
}

var _ Executor = (*RPCExecutor)(nil)

// NewRPCExecutor speaks newline-delimited JSON-RPC over r and w.
func NewRPCExecutor(r io.Reader, w io.WriteCloser) *RPCExecutor {
	return NewRPCExecutorChannel(channel.Line(r, w))
}

// NewRPCExecutorChannel uses an already framed channel.
func NewRPCExecutorChannel(ch channel.Channel) *RPCExecutor {
	return &RPCExecutor{client: jrpc2.NewClient(ch, nil)}
}

func (e *RPCExecutor) Execute(ctx context.Context, lang lexer.Language, code string) (string, error) {
	var res ExecuteResult
	err := e.client.CallResult(ctx, ExecuteMethod, &ExecuteParams{
		ID:       xid.New().String(),
		Language: string(lang),
		Code:     code,
	}, &res)
	if err != nil {
		return "", errors.Errorf("calling %s: %w", ExecuteMethod, err)
	}
	if res.Error != "" {
		return "", errors.Errorf("kernel error: %s", res.Error)
	}
	return res.Stdout, nil
}

func (e *RPCExecutor) Close() error {
	return e.client.Close()
}
