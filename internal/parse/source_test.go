package parse_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"goalline/internal/parse"
)

func TestReadCSV(t *testing.T) {
	in := "\xEF\xBB\xBFTitle,TargetValue,Unit,Values\n\"Run 120km\",120,km,\"Health, Movement\"\n\nRead,12,books,Craft\n"
	text, err := parse.ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	res := parse.Goals(text, parse.Context{})
	require.Empty(t, res.Errors)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, 2, res.Entities[0].Row)
	assert.Len(t, res.Entities[0].Values, 2)
	assert.Equal(t, 4, res.Entities[1].Row)
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "values.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Title", "Level", "Priority"},
		{"Health", "major", 10},
		{"Family", "", ""},
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	text, err := parse.ReadFile(path, "")
	require.NoError(t, err)
	res := parse.Values(text, parse.Context{})
	require.Empty(t, res.Errors)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, 10, res.Entities[0].Priority)
	assert.Equal(t, 50, res.Entities[1].Priority)

	_, err = parse.ReadXLSX(path, "Missing")
	require.Error(t, err)
}

func TestReadFilePlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "measures.txt")
	require.NoError(t, os.WriteFile(path, []byte("km\nmin\n"), 0o644))
	text, err := parse.ReadFile(path, "")
	require.NoError(t, err)
	assert.Len(t, parse.Measures(text, parse.Context{}).Entities, 2)
}
