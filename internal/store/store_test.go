package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/piwi3910/SlabNest/internal/model"
	"github.com/piwi3910/SlabNest/internal/nesting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *JobStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "jobs", "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRequest() nesting.Request {
	return nesting.Request{
		Parts: []model.Part{
			{ID: "a", Outline: model.Rect(10, 10), Quantity: 3},
			{ID: "b", Outline: model.Rect(5, 5)},
		},
		Config: model.NestingConfig{Spacing: 1, SheetWidth: 100, SheetHeight: 100, MaxNoImprovement: 5},
	}
}

// fixedClock returns a clock that advances one second per call.
func fixedClock() func() time.Time {
	t := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestJobStore_Lifecycle(t *testing.T) {
	s := openTestStore(t)
	s.now = fixedClock()

	s.JobQueued("j1", testRequest())
	job, err := s.Get("j1")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, 2, job.Parts)
	assert.Equal(t, 4, job.Instances)
	assert.Equal(t, 100.0, job.Config.SheetWidth)
	assert.Nil(t, job.StartedAt)

	s.JobStarted("j1")
	job, err = s.Get("j1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)
	assert.True(t, job.StartedAt.After(job.CreatedAt))

	result := model.NestingResult{
		JobID:       "j1",
		NestedParts: []model.Placement{{PartID: "a", X: 0.5, Y: 0.5}},
		Sheet:       model.Sheet{Width: 100, Height: 100},
		SheetCount:  1,
		Utilization: 1,
	}
	s.JobFinished("j1", result, nil)
	job, err = s.Get("j1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, result, *job.Result)
	require.NotNil(t, job.FinishedAt)
	assert.Empty(t, job.ErrorKind)
}

func TestJobStore_FailedJob(t *testing.T) {
	s := openTestStore(t)
	s.JobQueued("j2", testRequest())
	s.JobFinished("j2", model.NestingResult{}, &nesting.Error{Kind: nesting.KindCancelled, Message: "nesting run was cancelled", Err: context.Canceled})

	job, err := s.Get("j2")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, nesting.KindCancelled, job.ErrorKind)
	assert.Contains(t, job.Error, "cancelled")
	assert.Nil(t, job.Result)
}

func TestJobStore_GetUnknown(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobStore_RecentAndCounts(t *testing.T) {
	s := openTestStore(t)
	s.now = fixedClock()
	for _, id := range []string{"a", "b", "c"} {
		s.JobQueued(id, testRequest())
	}
	s.JobFinished("a", model.NestingResult{SheetCount: 1}, nil)
	s.JobStarted("b")

	jobs, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "c", jobs[0].ID)
	assert.Equal(t, "b", jobs[1].ID)

	counts, err := s.Counts()
	require.NoError(t, err)
	assert.Equal(t, map[Status]int{StatusSucceeded: 1, StatusRunning: 1, StatusQueued: 1}, counts)
}

func TestJobStore_Purge(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.JobQueued("old", testRequest())
	s.JobFinished("old", model.NestingResult{}, nil)
	s.JobQueued("pending", testRequest())

	now = now.Add(48 * time.Hour)
	s.JobQueued("new", testRequest())
	s.JobFinished("new", model.NestingResult{}, nil)

	n, err := s.Purge(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get("old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get("pending")
	assert.NoError(t, err, "unfinished jobs are kept")
	_, err = s.Get("new")
	assert.NoError(t, err)
}

func TestJobStore_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	s, err := Open(path)
	require.NoError(t, err)
	s.JobQueued("persisted", testRequest())
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	job, err := s.Get("persisted")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)
}

func TestJobStore_RecordsPoolRuns(t *testing.T) {
	s := openTestStore(t)
	pool := nesting.NewPool(nesting.NewService(), nesting.PoolConfig{Workers: 1}, s)
	defer pool.Close()

	res, err := pool.Nest(context.Background(), testRequest())
	require.NoError(t, err)

	job, err := s.Get(res.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, res.SheetCount, job.Result.SheetCount)
	assert.Len(t, job.Result.NestedParts, 4)
}
