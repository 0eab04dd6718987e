package editor

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gotodef/pkg/lexer"
)

// Document is an ordered list of cells with a stable identity. Cell order is
// the order definitions are searched in.
type Document interface {
	ID() string
	Path() string
	Language() lexer.Language
	Cells() []*Buffer
}

// CellIndex finds the position of a cell by id.
func CellIndex(doc Document, cellID string) (int, bool) {
	for i, c := range doc.Cells() {
		if c.ID() == cellID {
			return i, true
		}
	}
	return -1, false
}

// Cell returns the cell at index i, or nil when out of range.
func Cell(doc Document, i int) *Buffer {
	cells := doc.Cells()
	if i < 0 || i >= len(cells) {
		return nil
	}
	return cells[i]
}

// LanguageForPath guesses a language from a file extension.
func LanguageForPath(path string) (lexer.Language, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py", ".pyi", ".ipy":
		return lexer.Python, true
	case ".r":
		return lexer.R, true
	}
	return "", false
}

// IsNotebook reports whether path names a Jupyter notebook.
func IsNotebook(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".ipynb")
}

// Open builds the document for path from its content. Notebooks are parsed as
// such; anything else is a single-cell file whose language comes from the
// extension, or fallback.
func Open(ctx context.Context, id, path string, data []byte, fallback lexer.Language) (Document, error) {
	if IsNotebook(path) {
		return ParseNotebook(ctx, id, path, data, fallback)
	}
	lang, ok := LanguageForPath(path)
	if !ok {
		lang = fallback
	}
	return NewFile(ctx, id, path, lang, string(data)), nil
}

// File is a plain source file: one cell.
type File struct {
	id   string
	path string
	buf  *Buffer
}

var _ Document = (*File)(nil)

// NewFile wraps source in a one-cell document. An empty id gets a generated
// "untitled:" identity.
func NewFile(ctx context.Context, id, path string, lang lexer.Language, source string) *File {
	if id == "" {
		id = path
	}
	if id == "" {
		id = "untitled:" + uuid.NewString()
	}
	return &File{id: id, path: path, buf: NewBuffer(ctx, id, lang, source)}
}

func (f *File) ID() string {
	return f.id
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Language() lexer.Language {
	return f.buf.language
}

func (f *File) Cells() []*Buffer {
	return []*Buffer{f.buf}
}

func (f *File) Buffer() *Buffer {
	return f.buf
}

// Notebook is a sequence of linked cells sharing one kernel namespace.
type Notebook struct {
	id       string
	path     string
	language lexer.Language
	cells    []*Buffer
}

var _ Document = (*Notebook)(nil)

// CellSource describes one notebook cell before tokenization.
type CellSource struct {
	ID     string
	Kind   CellKind
	Source string
}

func NewNotebook(ctx context.Context, id, path string, lang lexer.Language, cells []CellSource) *Notebook {
	if id == "" {
		id = path
	}
	nb := &Notebook{id: id, path: path, language: lang}
	for _, c := range cells {
		cellID := c.ID
		if cellID == "" {
			cellID = uuid.NewString()
		}
		if c.Kind == CellCode || c.Kind == "" {
			nb.cells = append(nb.cells, NewBuffer(ctx, cellID, lang, c.Source))
		} else {
			nb.cells = append(nb.cells, NewMarkdownBuffer(cellID, c.Source))
		}
	}
	return nb
}

func (n *Notebook) ID() string {
	return n.id
}

func (n *Notebook) Path() string {
	return n.path
}

func (n *Notebook) Language() lexer.Language {
	return n.language
}

func (n *Notebook) Cells() []*Buffer {
	return n.cells
}

type ipynbFile struct {
	Metadata struct {
		Kernelspec struct {
			Language string `json:"language"`
		} `json:"kernelspec"`
		LanguageInfo struct {
			Name string `json:"name"`
		} `json:"language_info"`
	} `json:"metadata"`
	Cells []struct {
		ID       string          `json:"id"`
		CellType string          `json:"cell_type"`
		Source   json.RawMessage `json:"source"`
	} `json:"cells"`
}

// ParseNotebook reads nbformat 4 JSON. Cells without an id (nbformat < 4.5)
// get a random one. Markdown and raw cells are kept, without tokens, so cell
// indices line up with what the user sees.
func ParseNotebook(ctx context.Context, id, path string, data []byte, fallback lexer.Language) (*Notebook, error) {
	var raw ipynbFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Errorf("parsing notebook %s: %w", path, err)
	}

	name := raw.Metadata.Kernelspec.Language
	if name == "" {
		name = raw.Metadata.LanguageInfo.Name
	}
	lang, ok := lexer.ParseLanguage(name)
	if !ok {
		if name != "" {
			zerolog.Ctx(ctx).Warn().Str("path", path).Str("language", name).Msgf("notebook language %q is not supported yet, falling back to %s", name, fallback)
		}
		lang = fallback
	}

	cells := make([]CellSource, 0, len(raw.Cells))
	for i, c := range raw.Cells {
		src, err := joinSource(c.Source)
		if err != nil {
			return nil, errors.Errorf("parsing source of cell %d in %s: %w", i, path, err)
		}
		kind := CellMarkdown
		if c.CellType == string(CellCode) {
			kind = CellCode
		}
		cells = append(cells, CellSource{ID: c.ID, Kind: kind, Source: src})
	}

	return NewNotebook(ctx, id, path, lang, cells), nil
}

// joinSource accepts both the string and the list-of-lines form.
func joinSource(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return "", err
	}
	return strings.Join(lines, ""), nil
}
