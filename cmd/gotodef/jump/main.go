package jump

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gotodef/pkg/config"
	"github.com/walteh/gotodef/pkg/debug"
	"github.com/walteh/gotodef/pkg/editor"
	"github.com/walteh/gotodef/pkg/finder"
	"github.com/walteh/gotodef/pkg/jumper"
	"github.com/walteh/gotodef/pkg/metrics"
	"github.com/walteh/gotodef/pkg/position"
	"github.com/walteh/gotodef/pkg/workspace"
)

type Handler struct {
	debug      bool
	configPath string
	workspace  string
	cell       int
	asJSON     bool
	introspect bool
}

func NewJumpCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "jump FILE LINE:COL",
		Short: "print where the name at LINE:COL was last defined",
		Long: `Resolves the name at LINE:COL (1-based, columns count characters) of FILE
and prints the definition as path:line:col. FILE may be a .py, .R or .ipynb
file; use --cell to pick a notebook cell.`,
		Args: cobra.ExactArgs(2),
	}

	cmd.Flags().BoolVar(&me.debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&me.configPath, "config", "", "config file (default: looked up in the workspace)")
	cmd.Flags().StringVar(&me.workspace, "workspace", "", "workspace root (default: the working directory)")
	cmd.Flags().IntVar(&me.cell, "cell", 0, "zero-based notebook cell")
	cmd.Flags().BoolVar(&me.asJSON, "json", false, "print the target as JSON")
	cmd.Flags().BoolVar(&me.introspect, "introspect", false, "ask a live interpreter where modules live")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return me.Run(cmd.Context(), cmd.OutOrStdout(), afero.NewOsFs(), args[0], args[1])
	}

	return cmd
}

// ParsePlace reads a 1-based "LINE:COL" into a zero-based place.
func ParsePlace(s string) (position.Place, error) {
	line, col, ok := strings.Cut(s, ":")
	if !ok {
		return position.Place{}, errors.Errorf("expected LINE:COL, got %q", s)
	}
	l, err := strconv.Atoi(line)
	if err != nil || l < 1 {
		return position.Place{}, errors.Errorf("invalid line %q", line)
	}
	c, err := strconv.Atoi(col)
	if err != nil || c < 1 {
		return position.Place{}, errors.Errorf("invalid column %q", col)
	}
	return position.Place{Line: l - 1, Character: c - 1}, nil
}

func (me *Handler) Run(ctx context.Context, out io.Writer, fsys afero.Fs, file, at string) error {
	place, err := ParsePlace(at)
	if err != nil {
		return err
	}

	root := me.workspace
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return errors.Errorf("getting working directory: %w", err)
		}
	}
	path, err := filepath.Abs(file)
	if err != nil {
		return errors.Errorf("resolving %s: %w", file, err)
	}

	settings, err := config.LoadSettings(ctx, fsys, me.configPath, root)
	if err != nil {
		return err
	}
	if me.introspect {
		settings.Introspection.Enabled = true
	}

	level := settings.LogLevel
	if me.debug {
		level = zerolog.DebugLevel
	}
	logger := debug.NewLogger(os.Stderr, debug.Options{Level: level, Console: true, Color: !color.NoColor, Caller: me.debug})
	ctx = logger.WithContext(ctx)

	store := workspace.New(fsys, settings.DefaultLanguage)
	doc, err := store.Get(ctx, path)
	if err != nil {
		return err
	}
	buf := editor.Cell(doc, me.cell)
	if buf == nil {
		return errors.Errorf("%s has no cell %d", path, me.cell)
	}
	buf.WithUnit(position.Graphemes)

	tok, ok := editor.SelectToken(ctx, buf, buf.PositionToOffset(place), "")
	if !ok || tok.IsBlank() {
		return errors.Errorf("no name at %s", place)
	}

	exec, closer, err := settings.Executor(ctx, filepath.Dir(path))
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("introspection disabled")
	}
	if closer != nil {
		defer closer.Close()
	}

	j := jumper.New(jumper.Options{
		Executor:    exec,
		Timeout:     settings.Introspection.Timeout,
		StalePolicy: settings.Introspection.StalePolicy,
		Opener:      finder.NewDefaultFinder(fsys, root, settings.SearchPaths),
		Loader:      store.Get,
	})

	tgt, err := j.JumpToDefinition(ctx, jumper.Request{Document: doc, Cell: me.cell, Token: tok})
	if err != nil {
		return err
	}

	return Print(out, tgt, me.asJSON)
}

// Print writes path:line:col and the outcome, or the whole target as JSON.
func Print(out io.Writer, tgt jumper.Target, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(tgt)
	}

	if tgt.Outcome == metrics.OutcomeNone {
		_, err := fmt.Fprintln(out, color.YellowString("no definition found"))
		return err
	}

	where := fmt.Sprintf("%s:%s", tgt.Path, tgt.Place)
	if tgt.Cell > 0 {
		where = fmt.Sprintf("%s[cell %d]:%s", tgt.Path, tgt.Cell, tgt.Place)
	}
	_, err := fmt.Fprintf(out, "%s %s\n", color.New(color.Bold).Sprint(where), color.New(color.Faint).Sprintf("(%s)", tgt.Outcome))
	return err
}
