package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/anomalyvision/internal/models"
)

func report(video, summary string, at time.Time) models.Report {
	r := models.NewReport(video, "http", 16, models.AnalysisResult{
		Summary:    summary,
		Confidence: 0.5,
		EventType:  "none",
		Duration:   12,
	})
	r.CreatedAt = at
	return r
}

func TestVideoName(t *testing.T) {
	assert.Equal(t, "lobby", VideoName("/videos/cam1/lobby.mp4"))
	assert.Equal(t, "clip.final", VideoName("clip.final.webm"))
	assert.Equal(t, "noext", VideoName("noext"))
}

func TestFileStorageFlushWritesPerVideo(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStorage(dir)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.AddResult(ctx, report("lobby", "first", now)))
	require.NoError(t, s.AddResult(ctx, report("garage", "second", now.Add(time.Second))))

	// Nothing on disk until the batch is flushed
	_, err := os.Stat(filepath.Join(dir, "lobby", resultsFile))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, s.Flush())

	data, err := os.ReadFile(filepath.Join(dir, "lobby", resultsFile))
	require.NoError(t, err)
	var stored []models.Report
	require.NoError(t, json.Unmarshal(data, &stored))
	require.Len(t, stored, 1)
	assert.Equal(t, "first", stored[0].Result.Summary)

	_, err = os.Stat(filepath.Join(dir, "garage", resultsFile))
	assert.NoError(t, err)
}

func TestFileStorageFlushAppends(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	now := time.Now().UTC()

	s := NewFileStorage(dir)
	require.NoError(t, s.AddResult(ctx, report("lobby", "first", now)))
	s.Close()

	s = NewFileStorage(dir)
	require.NoError(t, s.AddResult(ctx, report("lobby", "second", now.Add(time.Minute))))
	s.Close()

	reports, err := NewFileStorage(dir).Recent(ctx, "lobby", 0)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "second", reports[0].Result.Summary)
	assert.Equal(t, "first", reports[1].Result.Summary)
}

func TestFileStorageBatchFlush(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStorage(dir)
	ctx := context.Background()

	for i := range batchSize {
		require.NoError(t, s.AddResult(ctx, report("lobby", "r", time.Unix(int64(i), 0))))
	}

	data, err := os.ReadFile(filepath.Join(dir, "lobby", resultsFile))
	require.NoError(t, err)
	var stored []models.Report
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Len(t, stored, batchSize)
}

func TestFileStorageRecent(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStorage(dir)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.AddResult(ctx, report("lobby", "old", base)))
	require.NoError(t, s.AddResult(ctx, report("garage", "middle", base.Add(time.Hour))))
	require.NoError(t, s.Flush())
	// Pending reports are visible before they are flushed
	require.NoError(t, s.AddResult(ctx, report("lobby", "new", base.Add(2*time.Hour))))

	all, err := s.Recent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"new", "middle", "old"}, summaries(all))

	limited, err := s.Recent(ctx, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "middle"}, summaries(limited))

	lobby, err := s.Recent(ctx, "lobby", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, summaries(lobby))

	none, err := s.Recent(ctx, "unknown", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFileStorageCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lobby"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lobby", resultsFile), []byte("{not json"), 0644))

	s := NewFileStorage(dir)
	_, err := s.Recent(context.Background(), "lobby", 0)
	assert.Error(t, err)

	require.NoError(t, s.AddResult(context.Background(), report("lobby", "x", time.Now())))
	assert.Error(t, s.Flush())
}

func summaries(reports []models.Report) []string {
	out := make([]string, len(reports))
	for i, r := range reports {
		out[i] = r.Result.Summary
	}
	return out
}
