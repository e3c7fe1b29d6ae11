package results

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/renderbench/internal/common/benchmarkerrors"
)

func TestWriteReadJobIds(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	w := NewWriter(dir)

	require.NoError(t, w.WriteJobIds([]string{"a", "b", "c"}))

	data, err := os.ReadFile(filepath.Join(dir, JobIdsFile))
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", string(data))

	ids, err := ReadJobIds(w.Path(JobIdsFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestReadJobIds_IgnoresBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), JobIdsFile)
	require.NoError(t, os.WriteFile(path, []byte("\n a \n\nb\r\n"), 0o644))

	ids, err := ReadJobIds(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestReadJobIds_Errors(t *testing.T) {
	dir := t.TempDir()

	var notFound *benchmarkerrors.ErrNotFound
	_, err := ReadJobIds(filepath.Join(dir, "missing.txt"))
	assert.ErrorAs(t, err, &notFound)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n\n"), 0o644))
	var invalid *benchmarkerrors.ErrInvalidArgument
	_, err = ReadJobIds(empty)
	assert.ErrorAs(t, err, &invalid)
}

func TestWriteJSON(t *testing.T) {
	w := NewWriter(t.TempDir())
	doc := map[string]any{"status": "completed", "total_jobs": 3}
	require.NoError(t, w.WriteJSON(VerificationResultsFile, doc))
	// Overwriting replaces the previous document.
	doc["status"] = "timeout"
	require.NoError(t, w.WriteJSON(VerificationResultsFile, doc))

	data, err := os.ReadFile(w.Path(VerificationResultsFile))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "timeout", decoded["status"])
	assert.Equal(t, 3.0, decoded["total_jobs"])

	entries, err := os.ReadDir(w.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}
