// Package export converts parsed activities to other file formats.
package export

import (
	"io"

	"github.com/lowaak/ttwatch/internal/ttbin"
)

// Exporter writes an activity in one output format.
type Exporter interface {
	Export(w io.Writer, f *ttbin.File) error
	// Extension is the file name extension of the format, without the dot.
	Extension() string
}
