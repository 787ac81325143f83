package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 10, 12, 7, 30, 0, time.UTC)

func TestNextRunInterval(t *testing.T) {
	c := NewCalculator(CronStandard, nil)

	tests := []struct {
		pattern string
		want    time.Duration
	}{
		{"30s", 30 * time.Second},
		{"5m", 5 * time.Minute},
		{"2h", 2 * time.Hour},
		{"1d", 24 * time.Hour},
		{" 10m ", 10 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			next, ok := c.NextRun(tt.pattern, base)
			require.True(t, ok)
			assert.Equal(t, base.Add(tt.want), next)
		})
	}
}

func TestNextRunInvalid(t *testing.T) {
	c := NewCalculator(CronStandard, nil)

	for _, pattern := range []string{"", "5", "m5", "5x", "5 minutes", "1.5h", "0m", "-1m", "99999999999999999999d", "61 * * * *"} {
		t.Run(pattern, func(t *testing.T) {
			_, ok := c.NextRun(pattern, base)
			assert.False(t, ok)
			assert.Error(t, c.Validate(pattern))
		})
	}
}

func TestNextRunStandardCron(t *testing.T) {
	c := NewCalculator(CronStandard, nil)

	tests := []struct {
		name    string
		pattern string
		want    time.Time
	}{
		{"every minute", "* * * * *", time.Date(2026, 3, 10, 12, 8, 0, 0, time.UTC)},
		{"step", "*/15 * * * *", time.Date(2026, 3, 10, 12, 15, 0, 0, time.UTC)},
		{"fixed time tomorrow", "0 9 * * *", time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)},
		{"range", "0 13-15 * * *", time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)},
		{"day of month", "30 6 1 * *", time.Date(2026, 4, 1, 6, 30, 0, 0, time.UTC)},
		{"day of week", "0 0 * * 0", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"list", "5,10 12 * * *", time.Date(2026, 3, 10, 12, 10, 0, 0, time.UTC)},
		{"list rolls over", "1,5 12 * * *", time.Date(2026, 3, 11, 12, 1, 0, 0, time.UTC)},
		{"descriptor", "@hourly", time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok := c.NextRun(tt.pattern, base)
			require.True(t, ok)
			assert.Equal(t, tt.want, next)
			assert.NoError(t, c.Validate(tt.pattern))
		})
	}
}

func TestNextRunPlaceholderCron(t *testing.T) {
	c := NewCalculator(CronPlaceholder, nil)

	for _, pattern := range []string{"0 9 * * *", "*/15 * * * *", "not really cron"} {
		t.Run(pattern, func(t *testing.T) {
			next, ok := c.NextRun(pattern, base)
			require.True(t, ok)
			assert.Equal(t, base.Add(5*time.Minute), next)
		})
	}

	next, ok := c.NextRun("2h", base)
	require.True(t, ok)
	assert.Equal(t, base.Add(2*time.Hour), next, "intervals are unaffected by the cron mode")
}

func TestNextRunUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	c := NewCalculator(CronStandard, loc)

	next, ok := c.NextRun("0 9 * * *", base)
	require.True(t, ok)
	// 12:07 UTC is 19:07 local, so the next local 09:00 is 02:00 UTC the following day.
	assert.Equal(t, time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC), next)
}

func TestNextRunDeterministic(t *testing.T) {
	c := NewCalculator("", nil)
	assert.Equal(t, CronStandard, c.Mode())

	a, okA := c.NextRun("*/5 * * * *", base)
	b, okB := c.NextRun("*/5 * * * *", base)
	assert.Equal(t, okA, okB)
	assert.Equal(t, a, b)
}
