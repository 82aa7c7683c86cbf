package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	name string
	runs int
	err  error
}

func (j *fakeJob) Name() string        { return j.name }
func (j *fakeJob) Description() string { return "test job" }
func (j *fakeJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func TestIntervalSchedule(t *testing.T) {
	s := NewIntervalSchedule(5 * time.Minute)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, at.Add(5*time.Minute), s.Next(at))
	assert.Equal(t, "@every 5m0s", s.String())
}

func TestDailySchedule_Next(t *testing.T) {
	s := NewDailySchedule(21, 30)

	// Before today's slot: fires today.
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 1, 21, 30, 0, 0, time.UTC), s.Next(at))

	// Exactly at the slot: fires tomorrow, never immediately re-fires.
	at = time.Date(2026, 1, 1, 21, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 2, 21, 30, 0, 0, time.UTC), s.Next(at))

	// After the slot: fires tomorrow.
	at = time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 2, 21, 30, 0, 0, time.UTC), s.Next(at))
}

func TestDailySchedule_ClampsAndNormalizes(t *testing.T) {
	s := NewDailySchedule(30, -5)
	assert.Equal(t, 23, s.Hour)
	assert.Equal(t, 0, s.Minute)
	assert.Equal(t, "@daily 23:00 UTC", s.String())

	// Non-UTC input is evaluated on the UTC clock.
	loc := time.FixedZone("UTC+3", 3*3600)
	at := time.Date(2026, 1, 1, 23, 30, 0, 0, loc) // 20:30 UTC
	next := NewDailySchedule(21, 0).Next(at)
	assert.Equal(t, time.Date(2026, 1, 1, 21, 0, 0, 0, time.UTC), next)
}

func TestRegister(t *testing.T) {
	s := NewScheduler(nil)

	require.NoError(t, s.Register(&fakeJob{name: "a"}, NewIntervalSchedule(time.Minute)))

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&fakeJob{name: "b"}, nil), ErrNilSchedule)
	assert.ErrorIs(t, s.Register(&fakeJob{name: "a"}, NewIntervalSchedule(time.Minute)), ErrJobAlreadyExists)

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, "@every 1m0s", infos[0].Schedule)
	assert.False(t, infos[0].NextRun.IsZero())
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(nil)
	ctx := context.Background()

	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(ctx), ErrSchedulerAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}

func TestRunNow(t *testing.T) {
	s := NewScheduler(nil)
	job := &fakeJob{name: "a"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	require.NoError(t, s.RunNow(context.Background(), "a"))
	assert.Equal(t, 1, job.runs)

	assert.ErrorIs(t, s.RunNow(context.Background(), "missing"), ErrJobNotFound)
}

func TestRunNow_PropagatesJobError(t *testing.T) {
	s := NewScheduler(nil)
	boom := errors.New("boom")
	require.NoError(t, s.Register(&fakeJob{name: "a", err: boom}, NewIntervalSchedule(time.Hour)))

	assert.ErrorIs(t, s.RunNow(context.Background(), "a"), boom)
}
