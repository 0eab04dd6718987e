// Package workspace keeps the documents a session knows about: the ones the
// editor opened, and the ones loaded from disk as jump targets.
package workspace

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gotodef/pkg/editor"
	"github.com/walteh/gotodef/pkg/lexer"
)

// NormalizeURI strips file:// and file: prefixes so that URIs and plain paths
// share one key space.
func NormalizeURI(uri string) string {
	uri = strings.TrimPrefix(uri, "file://")
	// remove the file:/private prefix
	uri = strings.TrimPrefix(uri, "file:")
	return uri
}

type entry struct {
	doc editor.Document
	// open is true for documents owned by the editor; those are never
	// reloaded from disk.
	open bool
}

// Store maps normalized URIs to documents.
type Store struct {
	fs       afero.Fs
	fallback lexer.Language
	store    *sync.Map // map[string]*entry

	watcher *fsnotify.Watcher
	// OnInvalidate is called with the document id when a disk-loaded document
	// changed on disk and was dropped.
	OnInvalidate func(id string)
}

func New(fsys afero.Fs, fallback lexer.Language) *Store {
	return &Store{fs: fsys, fallback: fallback, store: &sync.Map{}}
}

func (s *Store) FS() afero.Fs {
	return s.fs
}

// Open registers a document opened by the editor. languageID is the editor's
// language name; notebooks are recognized by path.
func (s *Store) Open(ctx context.Context, uri, languageID, text string) (editor.Document, error) {
	key := NormalizeURI(uri)

	lang, ok := lexer.ParseLanguage(languageID)
	if !ok {
		if lang, ok = editor.LanguageForPath(key); !ok {
			lang = s.fallback
		}
	}

	var doc editor.Document
	if editor.IsNotebook(key) {
		nb, err := editor.ParseNotebook(ctx, key, key, []byte(text), lang)
		if err != nil {
			return nil, err
		}
		doc = nb
	} else {
		doc = editor.NewFile(ctx, key, key, lang, text)
	}

	s.store.Store(key, &entry{doc: doc, open: true})
	return doc, nil
}

// Update replaces the text of one cell of an open document.
func (s *Store) Update(ctx context.Context, uri string, cell int, text string) (editor.Document, error) {
	doc, ok := s.GetNoFallback(uri)
	if !ok {
		return nil, errors.Errorf("document %s is not open", uri)
	}
	buf := editor.Cell(doc, cell)
	if buf == nil {
		return nil, errors.Errorf("document %s has no cell %d", uri, cell)
	}
	buf.Update(ctx, text)
	return doc, nil
}

// Close forgets a document.
func (s *Store) Close(uri string) {
	s.store.Delete(NormalizeURI(uri))
}

// GetNoFallback only returns documents already known.
func (s *Store) GetNoFallback(uri string) (editor.Document, bool) {
	e, ok := s.store.Load(NormalizeURI(uri))
	if !ok || e == nil {
		return nil, false
	}
	return e.(*entry).doc, true
}

// Get returns a known document or loads it from the file system.
func (s *Store) Get(ctx context.Context, uri string) (editor.Document, error) {
	if doc, ok := s.GetNoFallback(uri); ok {
		return doc, nil
	}

	key := NormalizeURI(uri)
	data, err := afero.ReadFile(s.fs, key)
	if err != nil {
		return nil, errors.Errorf("loading %s: %w", key, err)
	}

	doc, err := editor.Open(ctx, key, key, data, s.fallback)
	if err != nil {
		return nil, err
	}

	s.store.Store(key, &entry{doc: doc})
	zerolog.Ctx(ctx).Debug().Str("path", key).Int("cells", len(doc.Cells())).Msg("loaded document from disk")

	if s.watcher != nil {
		if err := s.watcher.Add(filepath.Dir(key)); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Str("path", key).Msg("watching document directory")
		}
	}

	return doc, nil
}

// Len counts the known documents.
func (s *Store) Len() int {
	n := 0
	s.store.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Watch drops disk-loaded documents when their file changes, until ctx is
// done or StopWatching is called. Documents open in the editor are left
// alone.
func (s *Store) Watch(ctx context.Context, dirs ...string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Errorf("creating file watcher: %w", err)
	}
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			w.Close()
			return errors.Errorf("watching %s: %w", d, err)
		}
	}
	s.watcher = w

	go func() {
		for {
			select {
			case <-ctx.Done():
				w.Close()
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				s.handleEvent(ctx, ev)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				zerolog.Ctx(ctx).Warn().Err(err).Msg("file watcher error")
			}
		}
	}()

	return nil
}

func (s *Store) StopWatching() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

func (s *Store) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Create) {
		return
	}
	key := filepath.Clean(ev.Name)
	e, ok := s.store.Load(key)
	if !ok || e.(*entry).open {
		return
	}
	s.store.Delete(key)
	zerolog.Ctx(ctx).Debug().Str("path", key).Str("op", ev.Op.String()).Msg("dropped stale document")
	if s.OnInvalidate != nil {
		s.OnInvalidate(key)
	}
}
