package lexer

import (
	"regexp"
	"strings"
)

var cellMagic = regexp.MustCompile(`^%%([A-Za-z][\w]*)`)

// CellMagic describes a cell-level language magic such as "%%R -i df".
type CellMagic struct {
	// Name is the magic as written, without the %% prefix.
	Name string
	// Language is the language the magic switches to, empty when the magic
	// does not change the language of the cell.
	Language Language
	// BodyOffset is the byte offset of the first line after the magic line.
	BodyOffset int
}

// DetectCellMagic inspects the first line of a cell.
func DetectCellMagic(source string) (CellMagic, bool) {
	m := cellMagic.FindStringSubmatch(source)
	if m == nil {
		return CellMagic{}, false
	}

	magic := CellMagic{Name: m[1], BodyOffset: len(source)}
	if nl := strings.IndexByte(source, '\n'); nl >= 0 {
		magic.BodyOffset = nl + 1
	}

	switch m[1] {
	case "R":
		magic.Language = R
	case "python", "python2", "python3", "pypy":
		magic.Language = Python
	}

	return magic, true
}
