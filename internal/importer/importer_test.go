package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yofu/dxf"
)

func TestSupported(t *testing.T) {
	for _, name := range []string{"a.dxf", "B.SVG", "parts.csv", "list.xlsx"} {
		assert.True(t, Supported(name), name)
	}
	for _, name := range []string{"a.xls", "b.pdf", "noext"} {
		assert.False(t, Supported(name), name)
	}
}

func TestImportFile_DispatchesByExtension(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "list.CSV")
	require.NoError(t, os.WriteFile(csvPath, []byte("Label,Width,Height\nShelf,600,300\n"), 0644))
	svgPath := filepath.Join(dir, "plate.svg")
	require.NoError(t, os.WriteFile(svgPath, []byte(`<svg><rect width="10" height="20"/></svg>`), 0644))

	result := ImportFile(csvPath)
	require.Len(t, result.Parts, 1)
	assert.Equal(t, "Shelf", result.Parts[0].Label)

	result = ImportFile(svgPath)
	require.Len(t, result.Parts, 1)
	assert.Equal(t, "plate 1", result.Parts[0].Label)

	result = ImportFile(filepath.Join(dir, "drawing.pdf"))
	assert.Equal(t, []string{`Unsupported file type ".pdf"`}, result.Errors)
}

func TestImportData_Uploads(t *testing.T) {
	d := dxf.NewDrawing()
	_, err := d.LwPolyline(true, []float64{0, 0}, []float64{40, 0}, []float64{40, 40}, []float64{0, 40})
	require.NoError(t, err)
	dxfPath := filepath.Join(t.TempDir(), "src.dxf")
	require.NoError(t, d.SaveAs(dxfPath))
	dxfData, err := os.ReadFile(dxfPath)
	require.NoError(t, err)

	result := ImportData("flange.dxf", dxfData)
	require.Empty(t, result.Errors)
	require.Len(t, result.Parts, 1)
	assert.Equal(t, "flange 1", result.Parts[0].Label)

	result = ImportData("cut.svg", []byte(`<svg><rect width="10" height="20"/></svg>`))
	require.Len(t, result.Parts, 1)
	assert.Equal(t, "cut 1", result.Parts[0].Label)

	result = ImportData("parts.csv", []byte("Shelf,600,300,2\n"))
	require.Len(t, result.Parts, 1)
	assert.Equal(t, 2, result.Parts[0].Quantity)

	result = ImportData("notes.txt", []byte("hello"))
	assert.True(t, result.Failed())
}

func TestImportResult_Merge(t *testing.T) {
	var all ImportResult
	all.Merge("a.svg", ImportSVGData([]byte(`<svg><rect width="1" height="1"/><polyline points="0,0 1,1 2,0"/></svg>`), "a"))
	all.Merge("b.csv", ImportCSVData([]byte("Shelf,600,300\nDoor,abc,300\n")))

	assert.Len(t, all.Parts, 2)
	assert.Equal(t, []string{"a.svg: Skipped open polyline"}, all.Warnings)
	require.Len(t, all.Errors, 1)
	assert.Equal(t, "b.csv: Line 2: Invalid width 'abc'", all.Errors[0])
	assert.True(t, all.Failed())
}
