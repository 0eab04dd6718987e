package introspect

import (
	"context"
	"os/exec"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// KernelProcess is an RPCExecutor whose peer is a child process serving
// kernel/execute on its stdio.
type KernelProcess struct {
	*RPCExecutor
	cmd *exec.Cmd
}

// StartKernel runs argv in dir. The child's stderr goes to the context
// logger.
func StartKernel(ctx context.Context, dir string, argv []string) (*KernelProcess, error) {
	if len(argv) == 0 {
		return nil, errors.WithMessage(ErrUnavailable, "empty kernel command")
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, errors.WrapWith(err, ErrUnavailable)
	}

	cmd := exec.Command(path, argv[1:]...)
	cmd.Dir = dir
	cmd.Stderr = zerolog.Ctx(ctx).With().Str("kernel", argv[0]).Logger()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Errorf("kernel stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Errorf("kernel stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Errorf("starting kernel %s: %w", argv[0], err)
	}

	zerolog.Ctx(ctx).Debug().Strs("argv", argv).Int("pid", cmd.Process.Pid).Msg("started kernel bridge")

	return &KernelProcess{RPCExecutor: NewRPCExecutor(stdout, stdin), cmd: cmd}, nil
}

// Close hangs up and reaps the child.
func (k *KernelProcess) Close() error {
	err := k.RPCExecutor.Close()
	_ = k.cmd.Process.Kill()
	_ = k.cmd.Wait()
	return err
}
