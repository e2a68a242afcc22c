package result

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *Record {
	return &Record{
		RunID:     "run-1",
		Source:    "/photos/a.png",
		Mode:      "single",
		AlbumID:   "album-1",
		Timestamp: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		Outcomes: []Outcome{
			{
				File:      "a.png",
				Success:   true,
				URL:       "https://hamster.is/images/abc.png",
				Timestamp: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
			},
		},
	}
}

func TestSinglePath(t *testing.T) {
	assert.Equal(t, filepath.Join("/photos", "a_hamup.txt"), SinglePath("/photos/a.png"))
	assert.Equal(t, filepath.Join("/photos", "archive.2024_hamup.txt"), SinglePath("/photos/archive.2024.jpg"))
	assert.Equal(t, "b_hamup.txt", SinglePath("b.webp"))
}

func TestGroupPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/photos/trip", "trip_hamup_results.txt"), GroupPath("/photos/trip"))
	assert.Equal(t, filepath.Join("/photos/trip", "trip_hamup_results.txt"), GroupPath("/photos/trip/"))
}

func TestWrite_NewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a_hamup.txt")

	outcome, err := Write(sampleRecord(), path, PolicyAsk)
	require.NoError(t, err)
	assert.Equal(t, StatusWritten, outcome.Status)
	assert.Equal(t, path, outcome.Path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Record
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "/photos/a.png", got.Source)
	assert.Equal(t, "single", got.Mode)
	assert.Len(t, got.Outcomes, 1)
	assert.True(t, got.Outcomes[0].Success)
	assert.Nil(t, got.Summary)
}

func TestWrite_ExistingFile(t *testing.T) {
	t.Run("ask returns needs decision and writes nothing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a_hamup.txt")
		require.NoError(t, os.WriteFile(path, []byte("old content"), 0644))

		outcome, err := Write(sampleRecord(), path, PolicyAsk)
		require.NoError(t, err)
		assert.Equal(t, StatusNeedsDecision, outcome.Status)
		assert.Equal(t, path, outcome.Path)

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "old content", string(raw))
	})

	t.Run("skip leaves file byte-identical", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a_hamup.txt")
		require.NoError(t, os.WriteFile(path, []byte("old content"), 0644))

		outcome, err := Write(sampleRecord(), path, PolicySkip)
		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, outcome.Status)

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "old content", string(raw))
	})

	t.Run("unknown policy is an error, not an overwrite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a_hamup.txt")
		require.NoError(t, os.WriteFile(path, []byte("old content"), 0644))

		_, err := Write(sampleRecord(), path, Policy("merge"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown existing-file policy")

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "old content", string(raw))
	})

	t.Run("overwrite replaces in full", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a_hamup.txt")
		require.NoError(t, os.WriteFile(path, []byte("old content that is much longer than the record"), 0644))

		outcome, err := Write(sampleRecord(), path, PolicyOverwrite)
		require.NoError(t, err)
		assert.Equal(t, StatusWritten, outcome.Status)

		raw, err := os.ReadFile(path)
		require.NoError(t, err)

		var got Record
		require.NoError(t, json.Unmarshal(raw, &got), "old content must be fully replaced, not merged")
		assert.Equal(t, "run-1", got.RunID)
	})
}

func TestWrite_GroupSummary(t *testing.T) {
	dir := t.TempDir()
	rec := sampleRecord()
	rec.Mode = "group"
	rec.Source = dir
	rec.Summary = &Summary{Attempted: 2, Succeeded: 1, Failed: 1, Cancelled: true}

	path := GroupPath(dir)
	_, err := Write(rec, path, PolicyOverwrite)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Record
	require.NoError(t, json.Unmarshal(raw, &got))
	require.NotNil(t, got.Summary)
	assert.Equal(t, 2, got.Summary.Attempted)
	assert.Equal(t, 1, got.Summary.Succeeded)
	assert.Equal(t, 1, got.Summary.Failed)
	assert.True(t, got.Summary.Cancelled)
}

func TestWrite_UnwritableDir(t *testing.T) {
	_, err := Write(sampleRecord(), filepath.Join(t.TempDir(), "missing", "a_hamup.txt"), PolicyOverwrite)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open result file")
}

func TestParsePolicy(t *testing.T) {
	for _, valid := range []string{"ask", "skip", "overwrite"} {
		p, err := ParsePolicy(valid)
		require.NoError(t, err)
		assert.Equal(t, Policy(valid), p)
	}

	_, err := ParsePolicy("merge")
	require.Error(t, err)
}
