package profile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordOutcome(ctx, "judge-1", "PLAINTIFF_WIN"))
	require.NoError(t, s.RecordOutcome(ctx, "judge-1", "PLAINTIFF_WIN"))
	require.NoError(t, s.RecordOutcome(ctx, "judge-1", "DISMISSAL"))
	require.NoError(t, s.RecordOutcome(ctx, "judge-2", "DEFENDANT_WIN"))

	stats, err := s.Stats(ctx, "judge-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"PLAINTIFF_WIN": 2, "DISMISSAL": 1}, stats)

	stats, err = s.Stats(ctx, "judge-2")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"DEFENDANT_WIN": 1}, stats)
}

func TestStatsUnknownJudge(t *testing.T) {
	s := openTestStore(t)
	stats, err := s.Stats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestRecordOutcomeValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	assert.Error(t, s.RecordOutcome(ctx, "", "PLAINTIFF_WIN"))
	assert.Error(t, s.RecordOutcome(ctx, "judge-1", ""))
}

func TestReopenSeesRecordedOutcomes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordOutcome(ctx, "judge-1", "SETTLEMENT"))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	stats, err := reopened.Stats(ctx, "judge-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"SETTLEMENT": 1}, stats)
}
