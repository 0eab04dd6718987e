// Package finder opens the files that cross-file references point at. It
// probes guessed candidate paths against the document directory and a list
// of search roots, and returns the first one that exists.
package finder

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"gitlab.com/tozd/go/errors"
)

// ErrNotFound is returned when no candidate exists.
var ErrNotFound = errors.Base("no candidate path exists")

// Opener locates the target of a cross-file reference.
type Opener interface {
	// Find returns the first existing path among candidates. dir is the
	// directory of the document the reference was found in.
	Find(ctx context.Context, dir string, candidates []string) (string, error)
}

// DefaultFinder probes an afero file system.
type DefaultFinder struct {
	fs        afero.Fs
	workspace string
	patterns  []string

	// Probed counts stat calls, nil to skip.
	Probed func()
}

var _ Opener = (*DefaultFinder)(nil)

// NewDefaultFinder searches the workspace root and every directory matching
// one of the doublestar patterns (relative to the workspace).
func NewDefaultFinder(fsys afero.Fs, workspace string, patterns []string) *DefaultFinder {
	return &DefaultFinder{fs: fsys, workspace: workspace, patterns: patterns}
}

// Roots lists the search roots in probing order: the workspace first, then
// pattern matches in the order the patterns were given.
func (f *DefaultFinder) Roots(ctx context.Context) []string {
	var roots []string
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			roots = append(roots, p)
		}
	}

	if f.workspace != "" {
		add(filepath.Clean(f.workspace))
	}

	for _, pattern := range f.patterns {
		if filepath.IsAbs(pattern) {
			if ok, _ := afero.DirExists(f.fs, pattern); ok {
				add(filepath.Clean(pattern))
			}
			continue
		}
		if f.workspace == "" {
			continue
		}
		matches, err := doublestar.Glob(afero.NewIOFS(afero.NewBasePathFs(f.fs, f.workspace)), filepath.ToSlash(pattern))
		if err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Str("pattern", pattern).Msg("expanding search path")
			continue
		}
		for _, m := range matches {
			full := filepath.Join(f.workspace, filepath.FromSlash(m))
			if ok, _ := afero.DirExists(f.fs, full); ok {
				add(full)
			}
		}
	}

	return roots
}

// Find implements Opener. Candidates starting with "./" or "../" only resolve
// against dir; absolute candidates are probed as they are; anything else is
// tried in dir and then in every root.
func (f *DefaultFinder) Find(ctx context.Context, dir string, candidates []string) (string, error) {
	var errs error
	var roots []string

	for _, c := range candidates {
		if c == "" {
			continue
		}

		var tries []string
		switch {
		case filepath.IsAbs(c):
			tries = []string{c}
		case strings.HasPrefix(c, "./") || strings.HasPrefix(c, "../"):
			tries = []string{filepath.Join(dir, c)}
		default:
			if roots == nil {
				roots = f.Roots(ctx)
			}
			if dir != "" {
				tries = append(tries, filepath.Join(dir, c))
			}
			for _, r := range roots {
				tries = append(tries, filepath.Join(r, c))
			}
		}

		for _, p := range dedupe(tries) {
			ok, err := f.exists(p)
			if err != nil {
				errs = multierr.Append(errs, errors.Errorf("probing %s: %w", p, err))
				continue
			}
			if ok {
				return p, nil
			}
		}
	}

	if errs != nil {
		zerolog.Ctx(ctx).Debug().Err(errs).Strs("candidates", candidates).Msg("skipped candidate paths")
	}

	return "", errors.WithDetails(ErrNotFound, "candidates", candidates)
}

func (f *DefaultFinder) exists(p string) (bool, error) {
	if f.Probed != nil {
		f.Probed()
	}
	info, err := f.fs.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func dedupe(paths []string) []string {
	out := paths[:0:0]
	seen := map[string]bool{}
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
