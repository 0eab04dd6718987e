package serve_lsp

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/walteh/gotodef/pkg/config"
	"github.com/walteh/gotodef/pkg/debug"
	"github.com/walteh/gotodef/pkg/editor"
	"github.com/walteh/gotodef/pkg/lsp"
	"github.com/walteh/gotodef/pkg/metrics"
)

type Handler struct {
	debug       bool
	configPath  string
	modifier    string
	metricsAddr string
	logToClient bool
	watch       bool
	introspect  bool
}

func NewServeLSPCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "serve-lsp",
		Short: "start the language server on stdio",
	}

	cmd.Flags().BoolVar(&me.debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&me.configPath, "config", "", "config file (default: gotodef.yaml, .yml or .hcl in the working directory)")
	cmd.Flags().StringVar(&me.modifier, "modifier", "", "modifier key that turns a click into a jump")
	cmd.Flags().StringVar(&me.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	cmd.Flags().BoolVar(&me.logToClient, "log-to-client", false, "send logs to the client as window/logMessage")
	cmd.Flags().BoolVar(&me.watch, "watch", true, "reload files loaded from disk when they change")
	cmd.Flags().BoolVar(&me.introspect, "introspect", false, "ask a live interpreter where modules live")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return me.Run(cmd.Context(), cmd.Root().Version, cmd.Flags().Changed("introspect"))
	}

	return cmd
}

type RPCLogger struct {
}

func (me *RPCLogger) LogRequest(ctx context.Context, req *jrpc2.Request) {
	zerolog.Ctx(ctx).Debug().Str("rpc_params", req.ParamString()).Str("rpc_id", req.ID()).Str("rpc_method", req.Method()).Msg("client request")
}

func (me *RPCLogger) LogResponse(ctx context.Context, res *jrpc2.Response) {
	zerolog.Ctx(ctx).Debug().Str("rpc_result", res.ResultString()).Str("rpc_id", res.ID()).Msg("server response")
}

func (me *Handler) Run(ctx context.Context, version string, introspectSet bool) error {
	wd, err := os.Getwd()
	if err != nil {
		return errors.Errorf("getting working directory: %w", err)
	}
	fsys := afero.NewOsFs()

	settings, err := config.LoadSettings(ctx, fsys, me.configPath, wd)
	if err != nil {
		return err
	}
	if me.modifier != "" {
		if settings.Modifier, err = editor.ParseKeyModifier(me.modifier); err != nil {
			return errors.Errorf("--modifier: %w", err)
		}
	}
	if introspectSet {
		settings.Introspection.Enabled = me.introspect
	}

	level := settings.LogLevel
	if me.debug {
		level = zerolog.DebugLevel
	}

	// stdout is the protocol stream, logs go to stderr or to the client
	logger := debug.NewLogger(os.Stderr, debug.Options{Level: level, Caller: me.debug})
	var writer *lsp.LSPWriter
	if me.logToClient {
		writer = lsp.NewLSPWriter(ctx)
		logger = writer.Logger(level)
	}
	ctx = logger.WithContext(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	exec, closer, err := settings.Executor(ctx, wd)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("introspection disabled")
	}
	if closer != nil {
		defer closer.Close()
	}

	server, err := lsp.NewServer(ctx, lsp.Options{
		Settings:  settings,
		Fs:        fsys,
		Workspace: wd,
		Executor:  exec,
		Metrics:   m,
		Version:   version,
		Watch:     me.watch,
	})
	if err != nil {
		return errors.Errorf("creating language server: %w", err)
	}

	instance := server.BuildServerInstance(ctx, &jrpc2.ServerOptions{
		RPCLog: &RPCLogger{},
	})
	if writer != nil {
		writer.Attach(instance)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if me.metricsAddr != "" {
		serveMetrics(gctx, g, me.metricsAddr, m.Handler())
	}

	g.Go(func() error {
		// the metrics endpoint lives as long as the client connection
		defer cancel()
		if err := lsp.StartAndWait(instance, os.Stdin, os.Stdout); err != nil {
			return errors.Errorf("error running language server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// serveMetrics runs the endpoint in g until ctx is done. A failing listener
// is logged, it does not take the language server down.
func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, h http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		zerolog.Ctx(ctx).Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("addr", addr).Msg("metrics endpoint stopped")
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
