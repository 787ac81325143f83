package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronMode selects how cron-like patterns are evaluated
type CronMode string

const (
	// CronStandard evaluates five-field expressions and @descriptors
	CronStandard CronMode = "standard"
	// CronPlaceholder schedules every cron-like pattern five minutes ahead
	CronPlaceholder CronMode = "placeholder"
)

const placeholderDelay = 5 * time.Minute

var intervalPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

var unitDurations = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// Calculator computes the next due time of a schedule pattern. It has no
// state besides its configuration and is safe for concurrent use.
type Calculator struct {
	mode   CronMode
	parser cron.Parser
	loc    *time.Location
}

// NewCalculator creates a calculator. An empty mode means CronStandard and a nil
// location means UTC.
func NewCalculator(mode CronMode, loc *time.Location) *Calculator {
	if mode == "" {
		mode = CronStandard
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{
		mode:   mode,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		loc:    loc,
	}
}

// Mode returns the cron evaluation mode
func (c *Calculator) Mode() CronMode {
	return c.mode
}

// NextRun returns the first due time strictly after `after`. The boolean is
// false when the pattern cannot be parsed, meaning the job can never fire.
func (c *Calculator) NextRun(pattern string, after time.Time) (time.Time, bool) {
	pattern = strings.TrimSpace(pattern)

	if every, ok := parseInterval(pattern); ok {
		return after.Add(every), true
	}

	if !isCronLike(pattern) {
		return time.Time{}, false
	}

	if c.mode == CronPlaceholder {
		return after.Add(placeholderDelay), true
	}

	sched, err := c.parser.Parse(pattern)
	if err != nil {
		return time.Time{}, false
	}
	next := sched.Next(after.In(c.loc))
	if next.IsZero() {
		return time.Time{}, false
	}
	return next.UTC(), true
}

// Validate explains why a pattern would never produce a due time
func (c *Calculator) Validate(pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return fmt.Errorf("schedule pattern cannot be empty")
	}
	if _, ok := parseInterval(pattern); ok {
		return nil
	}
	if !isCronLike(pattern) {
		return fmt.Errorf("invalid schedule pattern %q: expected <n>[s|m|h|d] or a cron expression", pattern)
	}
	if c.mode == CronPlaceholder {
		return nil
	}
	if _, err := c.parser.Parse(pattern); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", pattern, err)
	}
	return nil
}

func parseInterval(pattern string) (time.Duration, bool) {
	m := intervalPattern.FindStringSubmatch(pattern)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	unit := unitDurations[m[2]]
	if n > int64((1<<63-1)/unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

func isCronLike(pattern string) bool {
	return strings.ContainsAny(pattern, " \t") || strings.HasPrefix(pattern, "@")
}
