package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDailySpec(t *testing.T) {
	spec, err := buildDailySpec("07:05")
	require.NoError(t, err)
	assert.Equal(t, "0 5 7 * * *", spec)

	for _, bad := range []string{"7", "24:00", "12:60", "aa:10", ""} {
		_, err := buildDailySpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestOnceSchedule(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := onceSchedule{at: at}

	assert.Equal(t, at, s.Next(at.Add(-time.Hour)))
	assert.True(t, s.Next(at).IsZero())
	assert.True(t, s.Next(at.Add(time.Second)).IsZero())
}

func TestSchedulerService_Validation(t *testing.T) {
	s := NewSchedulerService(time.UTC)

	_, err := s.ScheduleInterval(0, func() {})
	assert.Error(t, err)
	_, err = s.ScheduleOnce(time.Now().Add(-time.Minute), func() {})
	assert.Error(t, err)

	id, err := s.ScheduleDaily("21:30", func() {})
	require.NoError(t, err)
	s.Remove(id)
}

func TestSchedulerService_ScheduleOnceFires(t *testing.T) {
	s := NewSchedulerService(time.UTC)
	fired := make(chan struct{}, 2)

	_, err := s.ScheduleOnce(time.Now().Add(200*time.Millisecond), func() { fired <- struct{}{} })
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("one-shot job did not run")
	}

	select {
	case <-fired:
		t.Fatal("one-shot job ran twice")
	case <-time.After(300 * time.Millisecond):
	}
}
