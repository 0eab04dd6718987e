package dump_tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gotodef/pkg/languages"
	"github.com/walteh/gotodef/pkg/lexer"
	"github.com/walteh/gotodef/pkg/tokens"
	"github.com/walteh/gotodef/pkg/workspace"
)

type Handler struct {
	language string
	all      bool
	asJSON   bool
}

func NewTokensCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "tokens FILE",
		Short: "print the token stream of a file or of every notebook cell",
		Args:  cobra.ExactArgs(1),
	}

	cmd.Flags().StringVar(&me.language, "language", "", "language when the extension does not tell (python or r)")
	cmd.Flags().BoolVar(&me.all, "all", false, "include whitespace and line breaks")
	cmd.Flags().BoolVar(&me.asJSON, "json", false, "print JSON lines")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return errors.Errorf("resolving %s: %w", args[0], err)
		}
		return me.Run(cmd.Context(), cmd.OutOrStdout(), afero.NewOsFs(), path)
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context, out io.Writer, fsys afero.Fs, path string) error {
	fallback := lexer.Python
	if me.language != "" {
		lang, ok := lexer.ParseLanguage(me.language)
		if !ok {
			return errors.Errorf("unsupported language %q, want one of %v", me.language, languages.Supported())
		}
		fallback = lang
	}

	doc, err := workspace.New(fsys, fallback).Get(ctx, path)
	if err != nil {
		return err
	}

	if me.asJSON {
		enc := json.NewEncoder(out)
		for i, cell := range doc.Cells() {
			for _, tok := range me.filter(cell.Tokens()) {
				if err := enc.Encode(struct {
					Cell int `json:"cell"`
					tokens.Token
				}{i, tok}); err != nil {
					return err
				}
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, cell := range doc.Cells() {
		if len(doc.Cells()) > 1 {
			fmt.Fprintln(tw, color.New(color.Bold).Sprintf("# cell %d (%s, %s)", i, cell.Kind(), cell.Language()))
		}
		for _, tok := range me.filter(cell.Tokens()) {
			fmt.Fprintf(tw, "%s\t%s\t%q\n", cell.OffsetToPosition(tok.Offset), kindColor(tok.Type), tok.Value)
		}
	}
	return tw.Flush()
}

func (me *Handler) filter(toks []tokens.Token) []tokens.Token {
	if me.all {
		return toks
	}
	out := make([]tokens.Token, 0, len(toks))
	for _, t := range toks {
		if !t.IsBlank() {
			out = append(out, t)
		}
	}
	return out
}

func kindColor(kind string) string {
	switch kind {
	case tokens.KindVariable, tokens.KindDef:
		return color.CyanString(kind)
	case tokens.KindKeyword:
		return color.MagentaString(kind)
	case tokens.KindString, tokens.KindNumber:
		return color.GreenString(kind)
	case tokens.KindComment:
		return color.New(color.Faint).Sprint(kind)
	case tokens.KindBlank:
		return "blank"
	}
	return kind
}
