package export

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Format names an export format.
type Format string

const (
	FormatSVG    Format = "svg"
	FormatDXF    Format = "dxf"
	FormatPDF    Format = "pdf"
	FormatXLSX   Format = "xlsx"
	FormatLabels Format = "labels"
	FormatJSON   Format = "json"
)

var formats = map[Format]struct {
	ext         string
	contentType string
	write       func(io.Writer, Job) error
}{
	FormatSVG:    {".svg", "image/svg+xml", RenderSVG},
	FormatDXF:    {".dxf", "application/dxf", WriteDXF},
	FormatPDF:    {".pdf", "application/pdf", WritePDF},
	FormatXLSX:   {".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", WriteXLSX},
	FormatLabels: {".pdf", "application/pdf", WriteLabels},
	FormatJSON:   {".json", "application/json", WriteJSON},
}

// ParseFormat validates a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := formats[f]; !ok {
		return "", fmt.Errorf("unknown export format %q (want svg, dxf, pdf, xlsx, labels or json)", s)
	}
	return f, nil
}

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range []Format{FormatSVG, FormatDXF, FormatPDF, FormatXLSX, FormatJSON} {
		if formats[f].ext == ext {
			return f, nil
		}
	}
	return "", fmt.Errorf("no export format for extension %q", ext)
}

// Extension returns the file extension, including the dot.
func (f Format) Extension() string {
	return formats[f].ext
}

// ContentType returns the MIME type of the rendered file.
func (f Format) ContentType() string {
	return formats[f].contentType
}

// FileName returns the download name for a rendered layout.
func (f Format) FileName() string {
	if f == FormatLabels {
		return "nested_labels.pdf"
	}
	return "nested_layout" + f.Extension()
}

// Write renders job in format f.
func Write(w io.Writer, f Format, job Job) error {
	entry, ok := formats[f]
	if !ok {
		return fmt.Errorf("unknown export format %q", f)
	}
	return entry.write(w, job)
}

// WriteFile renders job to path in format f.
func WriteFile(path string, f Format, job Job) error {
	return writeFile(path, func(w io.Writer) error { return Write(w, f, job) })
}

// WriteJSON writes the job itself, so it can be rendered again later.
func WriteJSON(w io.Writer, job Job) error {
	if len(job.Result.NestedParts) == 0 {
		return ErrEmptyLayout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}
