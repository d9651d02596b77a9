// Package parser groups the format-specific readers that turn raw input
// bytes into a header row plus data rows, and the detection logic that picks
// one. Subpackages hold the readers; this package only decides formats.
package parser

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies an input format the service can parse.
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatXLSX
	FormatJSON
	FormatHTML
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXLSX:
		return "xlsx"
	case FormatJSON:
		return "json"
	case FormatHTML:
		return "html"
	default:
		return "unknown"
	}
}

// ParseFormat maps an explicit user-supplied format name. Empty means
// "detect"; unknown names are an error so typos fail loudly instead of
// parsing garbage.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return FormatUnknown, nil
	case "csv", "tsv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	case "json":
		return FormatJSON, nil
	case "html", "htm":
		return FormatHTML, nil
	default:
		return FormatUnknown, fmt.Errorf("unsupported format %q", s)
	}
}

// xlsxMagic is the ZIP local-file-header signature; XLSX files are ZIP
// containers.
var xlsxMagic = []byte("PK\x03\x04")

// Detect picks a format from the file name extension, falling back to
// content sniffing of the first bytes. CSV is the terminal fallback: plain
// tabular text has no magic to find.
func Detect(name string, head []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv":
		return FormatCSV
	case ".xlsx":
		return FormatXLSX
	case ".json":
		return FormatJSON
	case ".html", ".htm":
		return FormatHTML
	}

	if bytes.HasPrefix(head, xlsxMagic) {
		return FormatXLSX
	}

	trimmed := bytes.TrimLeft(bytes.TrimPrefix(head, []byte("\xef\xbb\xbf")), " \t\r\n")
	if len(trimmed) == 0 {
		return FormatCSV
	}
	switch trimmed[0] {
	case '<':
		return FormatHTML
	case '{', '[':
		return FormatJSON
	default:
		return FormatCSV
	}
}
