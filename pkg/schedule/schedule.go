package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
)

// Rule computes fire instants for a schedule expression.
type Rule interface {
	// Next returns the first fire instant at or after from.
	Next(from time.Time) time.Time
	// String returns the expression the rule was parsed from.
	String() string
}

// ParseError reports an expression that could not be parsed.
type ParseError struct {
	Expr   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("jobs: invalid schedule %q: %s", e.Expr, e.Reason)
}

// Is lets callers treat parse failures as validation errors.
func (e *ParseError) Is(target error) bool {
	return target == core.ErrValidation
}

var (
	everyMinutes = regexp.MustCompile(`^every\s+(\d+)\s+minutes?$`)
	dailyAt      = regexp.MustCompile(`^daily\s+at\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`)
	weeklyOn     = regexp.MustCompile(`^weekly\s+on\s+([a-z]+)$`)

	cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	weekdays = map[string]time.Weekday{
		"sunday": time.Sunday, "sun": time.Sunday,
		"monday": time.Monday, "mon": time.Monday,
		"tuesday": time.Tuesday, "tue": time.Tuesday,
		"wednesday": time.Wednesday, "wed": time.Wednesday,
		"thursday": time.Thursday, "thu": time.Thursday,
		"friday": time.Friday, "fri": time.Friday,
		"saturday": time.Saturday, "sat": time.Saturday,
	}
)

type cronRule struct {
	expr string
	spec *cron.SpecSchedule
}

// Parse parses expr in UTC.
func Parse(expr string) (Rule, error) {
	return ParseIn(expr, time.UTC)
}

// ParseIn parses expr, evaluating wall-clock forms in loc.
//
// Supported forms, case-insensitive:
//
//	every N minutes          N in 1..60, aligned to the top of the hour
//	daily at H AM|PM         also "daily at 7:30 pm"
//	weekly on <weekday>      midnight; full names or three-letter abbreviations
//	M H D Mo DoW             five cron fields; day and month are ignored
func ParseIn(expr string, loc *time.Location) (Rule, error) {
	if loc == nil {
		loc = time.UTC
	}
	normalized := strings.Join(strings.Fields(strings.ToLower(expr)), " ")
	if normalized == "" {
		return nil, &ParseError{Expr: expr, Reason: "empty expression"}
	}

	spec, err := toCronSpec(normalized)
	if err != nil {
		return nil, &ParseError{Expr: expr, Reason: err.Error()}
	}

	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, &ParseError{Expr: expr, Reason: err.Error()}
	}
	specSched, ok := sched.(*cron.SpecSchedule)
	if !ok {
		return nil, &ParseError{Expr: expr, Reason: "unsupported cron form"}
	}
	specSched.Location = loc

	return &cronRule{expr: strings.TrimSpace(expr), spec: specSched}, nil
}

func toCronSpec(expr string) (string, error) {
	if m := everyMinutes.FindStringSubmatch(expr); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > 60 {
			return "", fmt.Errorf("interval must be between 1 and 60 minutes")
		}
		if n == 60 {
			return "0 * * * *", nil
		}
		return fmt.Sprintf("*/%d * * * *", n), nil
	}

	if m := dailyAt.FindStringSubmatch(expr); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h < 1 || h > 12 {
			return "", fmt.Errorf("hour must be between 1 and 12")
		}
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
			if minute > 59 {
				return "", fmt.Errorf("minute must be between 0 and 59")
			}
		}
		// 12 AM is midnight, 12 PM is noon.
		hour := h % 12
		if m[3] == "pm" {
			hour += 12
		}
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	}

	if m := weeklyOn.FindStringSubmatch(expr); m != nil {
		day, ok := weekdays[m[1]]
		if !ok {
			return "", fmt.Errorf("unknown weekday %q", m[1])
		}
		return fmt.Sprintf("0 0 * * %d", int(day)), nil
	}

	fields := strings.Fields(expr)
	if len(fields) == 5 {
		// Only minute, hour and day-of-week are honoured.
		return fmt.Sprintf("%s %s * * %s", fields[0], fields[1], fields[4]), nil
	}

	return "", fmt.Errorf("unrecognized expression")
}

func (r *cronRule) String() string {
	return r.expr
}

func (r *cronRule) Next(from time.Time) time.Time {
	if from.Truncate(time.Minute).Equal(from) {
		if at := r.spec.Next(from.Add(-time.Second)); at.Equal(from) {
			return at
		}
	}
	return r.spec.Next(from)
}

// DueAt reports the fire instant that makes rule due at now, if any.
//
// It looks for the first fire at or after now-window, skipping fires older
// than now-tolerance, and reports due when that fire lies within tolerance of
// now. Callers must poll more often than tolerance or fires can be missed.
func DueAt(rule Rule, now time.Time, window, tolerance time.Duration) (time.Time, bool) {
	floor := now.Add(-tolerance)
	next := rule.Next(now.Add(-window))
	for !next.IsZero() && next.Before(floor) {
		next = rule.Next(next.Add(time.Second))
	}
	if next.IsZero() {
		return time.Time{}, false
	}
	delta := next.Sub(now)
	if delta < 0 {
		delta = -delta
	}
	return next, delta < tolerance
}
