package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewUnlimitedWhenCeilingIsZero(t *testing.T) {
	assert := require.New(t)
	b := New(0, 0, nil, nil)
	assert.Equal(unlimited, b.Download.Limit())
	assert.Equal(unlimited, b.Upload.Limit())
}

func TestNewAppliesFiniteCeiling(t *testing.T) {
	assert := require.New(t)
	b := New(1000, 500, nil, nil)
	assert.Equal(float64(1000), float64(b.Download.Limit()))
	assert.Equal(float64(500), float64(b.Upload.Limit()))
}

func TestReconfigureMutatesSharedLimiterInPlace(t *testing.T) {
	assert := require.New(t)
	b := New(1000, 500, nil, nil)
	download := b.Download // same pointer an already-running engine would hold

	b.Reconfigure(2000, 1000, nil)

	assert.Same(download, b.Download, "Reconfigure must not replace the limiter pointer")
	assert.Equal(float64(2000), float64(b.Download.Limit()))
}

func TestScheduleRuleMatchesWithinHourWindow(t *testing.T) {
	r := ScheduleRule{StartHour: 22, EndHour: 6}
	night := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	day := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.True(t, r.matches(night), "23:00 falls within a 22->6 wraparound window")
	require.False(t, r.matches(day))
}

func TestScheduleRuleMatchesSpecificDays(t *testing.T) {
	r := ScheduleRule{Days: []time.Weekday{time.Monday}, StartHour: 0, EndHour: 24}
	monday := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC) // a Monday
	tuesday := time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)
	require.True(t, r.matches(monday))
	require.False(t, r.matches(tuesday))
}

func TestApplyScheduleLastMatchingRuleWins(t *testing.T) {
	assert := require.New(t)
	rules := []ScheduleRule{
		{StartHour: 0, EndHour: 24, DownloadCeiling: 100, UploadCeiling: 50},
		{StartHour: 0, EndHour: 24, DownloadCeiling: 200, UploadCeiling: 75},
	}
	b := New(1000, 1000, rules, nil)
	b.ApplySchedule(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC), 1000, 1000)

	assert.Equal(float64(200), float64(b.Download.Limit()))
	assert.Equal(float64(75), float64(b.Upload.Limit()))
}
