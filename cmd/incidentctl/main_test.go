package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sampleExport = `Number,State,Created,Severity
INC001,Open,01-15-2024 10:00:00,High
,Open,01-15-2024 11:00:00,Low
INC002,Closed,2024-01-16 09:30:00,NULL
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeSample(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleExport), 0o644))
	return path
}

func TestTransform_WritesCleanCSV(t *testing.T) {
	dir := t.TempDir()
	in := writeSample(t, dir)
	out := filepath.Join(dir, "clean.csv")

	stdout, err := execute(t, "transform", "--config", dir, "--in", in, "--out", out, "--format", "csv")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Written:   2")
	assert.Contains(t, stdout, "row 3: missing required field: number")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "number,state,created"))
	assert.True(t, strings.HasPrefix(lines[1], "INC001,Open,2024-01-15"))
	assert.True(t, strings.HasPrefix(lines[2], "INC002,Closed,2024-01-16"))
}

func TestTransform_WritesXLSX(t *testing.T) {
	dir := t.TempDir()
	in := writeSample(t, dir)
	out := filepath.Join(dir, "clean.xlsx")

	_, err := execute(t, "transform", "--config", dir, "--in", in, "--out", out, "--format", "xlsx")
	require.NoError(t, err)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "number", rows[0][0])
	assert.Equal(t, "INC002", rows[2][0])
}

func TestTransform_RejectsUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	in := writeSample(t, dir)

	_, err := execute(t, "transform", "--config", dir, "--in", in, "--out", filepath.Join(dir, "x.json"), "--format", "json")
	require.Error(t, err)
}

func TestMigrate_RejectsUnknownDirection(t *testing.T) {
	_, err := execute(t, "migrate", "sideways")
	require.Error(t, err)
}
