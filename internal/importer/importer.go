// Package importer turns outline drawings (DXF, SVG) and tabular part lists
// (CSV, XLSX) into nesting parts.
package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/piwi3910/SlabNest/internal/model"
)

// ImportResult holds the parts read from one source. Errors make the source
// unusable; warnings describe shapes or rows that were skipped.
type ImportResult struct {
	Parts    []model.Part
	Errors   []string
	Warnings []string
}

// Failed reports whether the import produced errors.
func (r ImportResult) Failed() bool {
	return len(r.Errors) > 0
}

// Merge appends another result, prefixing its messages with source.
func (r *ImportResult) Merge(source string, other ImportResult) {
	r.Parts = append(r.Parts, other.Parts...)
	for _, e := range other.Errors {
		r.Errors = append(r.Errors, source+": "+e)
	}
	for _, w := range other.Warnings {
		r.Warnings = append(r.Warnings, source+": "+w)
	}
}

// Supported reports whether ImportFile can read files with this name.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".dxf", ".svg", ".csv", ".xlsx":
		return true
	}
	return false
}

// ImportFile reads a file, choosing the importer by extension.
func ImportFile(path string) ImportResult {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dxf":
		return ImportDXF(path)
	case ".svg":
		return ImportSVG(path)
	case ".csv":
		return ImportCSV(path)
	case ".xlsx":
		return ImportExcel(path)
	}
	return ImportResult{Errors: []string{fmt.Sprintf("Unsupported file type %q", filepath.Ext(path))}}
}

// ImportData reads an uploaded file held in memory. name selects the importer
// and labels the parts.
func ImportData(name string, data []byte) ImportResult {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".svg":
		return ImportSVGData(data, partLabel(name, "SVG"))
	case ".csv":
		return ImportCSVData(data)
	case ".dxf", ".xlsx":
		// Both readers need a file on disk.
		return importViaTempFile(name, data)
	}
	return ImportResult{Errors: []string{fmt.Sprintf("Unsupported file type %q", filepath.Ext(name))}}
}

func importViaTempFile(name string, data []byte) ImportResult {
	ext := strings.ToLower(filepath.Ext(name))
	f, err := os.CreateTemp("", "slabnest-*"+ext)
	if err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("Cannot buffer upload: %v", err)}}
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(data); err != nil {
		f.Close()
		return ImportResult{Errors: []string{fmt.Sprintf("Cannot buffer upload: %v", err)}}
	}
	if err := f.Close(); err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("Cannot buffer upload: %v", err)}}
	}

	if ext == ".dxf" {
		return importDXF(f.Name(), partLabel(name, "DXF"))
	}
	return ImportExcel(f.Name())
}

// partLabel derives a label prefix from the file name, falling back to kind.
func partLabel(path, kind string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if base == "" || base == "." {
		return kind + " Part"
	}
	return base
}
