package sched

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func TestWatchdogFlagsSilentHost(t *testing.T) {
	s, h := newTestScheduler(t)
	logger, hook := test.NewNullLogger()
	wd := NewWatchdog(s, time.Second, logger)

	require.False(t, wd.Check(h.Now()), "no request outstanding, nothing to flag")

	s.ScheduleCallback(NormalPriority, func(bool) (Result, error) {
		return Done(), nil
	})
	requestedAt, ok := s.PendingRequestSince()
	require.True(t, ok)

	require.False(t, wd.Check(requestedAt.Add(500*time.Millisecond)))
	require.Empty(t, hook.Entries)

	require.True(t, wd.Check(requestedAt.Add(2*time.Second)))
	require.Len(t, hook.Entries, 1)
	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	// Once the host delivers, the request clears and the dog goes quiet.
	h.Step()
	require.False(t, wd.Check(requestedAt.Add(time.Hour)))
}

func TestWatchdogDefaults(t *testing.T) {
	s, _ := newTestScheduler(t)
	wd := NewWatchdog(s, 0, nil)
	require.Equal(t, time.Duration(defaultConfig().StallMS)*time.Millisecond, wd.threshold)
	require.NotNil(t, wd.log)
}
