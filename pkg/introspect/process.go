package introspect

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gotodef/pkg/lexer"
)

// DefaultInterpreters are tried when nothing else is configured. The snippet
// is appended as the last argument.
var DefaultInterpreters = map[lexer.Language][]string{
	lexer.Python: {"python3", "-c"},
	lexer.R:      {"Rscript", "-e"},
}

// ProcessExecutor runs each snippet in a fresh interpreter process.
type ProcessExecutor struct {
	Interpreters map[lexer.Language][]string
	// Dir is the working directory of the interpreter, usually the directory
	// of the document being edited.
	Dir string
	Env []string
}

var _ Executor = (*ProcessExecutor)(nil)

func NewProcessExecutor(dir string, interpreters map[lexer.Language][]string) *ProcessExecutor {
	merged := map[lexer.Language][]string{}
	for lang, argv := range DefaultInterpreters {
		merged[lang] = argv
	}
	for lang, argv := range interpreters {
		if len(argv) > 0 {
			merged[lang] = argv
		}
	}
	return &ProcessExecutor{Interpreters: merged, Dir: dir}
}

func (p *ProcessExecutor) Execute(ctx context.Context, lang lexer.Language, code string) (string, error) {
	argv, ok := p.Interpreters[lang]
	if !ok || len(argv) == 0 {
		return "", errors.WithDetails(ErrUnavailable, "language", string(lang))
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return "", errors.WrapWith(err, ErrUnavailable)
	}

	args := append(append([]string{}, argv[1:]...), code)
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = p.Dir
	if len(p.Env) > 0 {
		cmd.Env = p.Env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", errors.Errorf("running %s: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
