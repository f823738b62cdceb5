package reporting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/ethereum-optimism/infra/wetest/types"
)

// ReportWriter defines the interface for writing a report document
type ReportWriter interface {
	Write(doc *Document) error
}

// FileWriter writes the report as JSON to a file
type FileWriter struct {
	path string
}

// NewFileWriter creates a new file writer
func NewFileWriter(path string) *FileWriter {
	return &FileWriter{path: path}
}

// Path returns the destination path
func (fw *FileWriter) Path() string {
	return fw.path
}

// Write encodes doc with HTML escaping disabled and replaces the file.
func (fw *FileWriter) Write(doc *Document) error {
	content, err := EncodeJSON(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(fw.path, content, 0644)
}

// EncodeJSON encodes v as indented JSON, keeping non-ASCII text and HTML
// characters verbatim.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return buf.Bytes(), nil
}

// ColorsEnabled reports whether f is a terminal that can show colors.
func ColorsEnabled(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// StatusColors returns the colors used for a status word
func StatusColors(status types.TestStatus) text.Colors {
	switch status {
	case types.TestStatusPass:
		return text.Colors{text.FgGreen}
	case types.TestStatusFail:
		return text.Colors{text.FgRed, text.Bold}
	default:
		return text.Colors{text.FgYellow}
	}
}

// FormatDuration formats a duration for display
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}
