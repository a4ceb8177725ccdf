package etl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Recurrence is a parsed recurrence descriptor. Cron is set, and Frequency
// is CUSTOM, when the descriptor was a cron expression.
type Recurrence struct {
	Frequency string
	Interval  int
	Cron      string

	schedule cron.Schedule
}

type cadence struct {
	frequency string
	interval  int
}

var recurrenceWords = map[string]cadence{
	"daily":         {"DAILY", 1},
	"weekly":        {"WEEKLY", 1},
	"biweekly":      {"WEEKLY", 2},
	"bi weekly":     {"WEEKLY", 2},
	"fortnightly":   {"WEEKLY", 2},
	"monthly":       {"MONTHLY", 1},
	"bimonthly":     {"MONTHLY", 2},
	"bi monthly":    {"MONTHLY", 2},
	"quarterly":     {"QUARTERLY", 1},
	"semiannual":    {"SEMIANNUAL", 1},
	"semiannually":  {"SEMIANNUAL", 1},
	"semi annual":   {"SEMIANNUAL", 1},
	"semi annually": {"SEMIANNUAL", 1},
	"biannual":      {"SEMIANNUAL", 1},
	"half yearly":   {"SEMIANNUAL", 1},
	"yearly":        {"YEARLY", 1},
	"annual":        {"YEARLY", 1},
	"annually":      {"YEARLY", 1},
}

var unitFrequencies = map[string]string{
	"day":     "DAILY",
	"week":    "WEEKLY",
	"month":   "MONTHLY",
	"quarter": "QUARTERLY",
	"year":    "YEARLY",
}

var everyPattern = regexp.MustCompile(`^every\s+(?:(\d+|other)\s+)?(day|week|month|quarter|year)s?$`)

// ParseRecurrence accepts frequency words ("weekly", "semi-annual"),
// "every N days|weeks|months|quarters|years" and standard cron expressions.
func ParseRecurrence(s string) (Recurrence, error) {
	text := strings.ToLower(strings.TrimSpace(s))
	text = strings.Join(strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(text)), " ")
	if text == "" {
		return Recurrence{}, fmt.Errorf("empty recurrence")
	}

	if c, ok := recurrenceWords[text]; ok {
		return Recurrence{Frequency: c.frequency, Interval: c.interval}, nil
	}
	if m := everyPattern.FindStringSubmatch(text); m != nil {
		n := 1
		switch m[1] {
		case "":
		case "other":
			n = 2
		default:
			v, err := strconv.Atoi(m[1])
			if err != nil || v < 1 {
				return Recurrence{}, fmt.Errorf("invalid recurrence interval: %s", s)
			}
			n = v
		}
		return Recurrence{Frequency: unitFrequencies[m[2]], Interval: n}, nil
	}

	expr := strings.TrimSpace(s)
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return Recurrence{}, fmt.Errorf("unrecognized recurrence: %s", s)
	}
	return Recurrence{Frequency: "CUSTOM", Interval: 1, Cron: expr, schedule: sched}, nil
}

// Next returns the occurrence following from.
func (r Recurrence) Next(from time.Time) time.Time {
	if r.schedule != nil {
		return r.schedule.Next(from)
	}
	n := r.Interval
	if n < 1 {
		n = 1
	}
	switch r.Frequency {
	case "DAILY":
		return from.AddDate(0, 0, n)
	case "WEEKLY":
		return from.AddDate(0, 0, 7*n)
	case "QUARTERLY":
		return from.AddDate(0, 3*n, 0)
	case "SEMIANNUAL":
		return from.AddDate(0, 6*n, 0)
	case "YEARLY":
		return from.AddDate(n, 0, 0)
	default:
		return from.AddDate(0, n, 0)
	}
}

// NextAfter steps forward from base to the first occurrence after now.
func (r Recurrence) NextAfter(base, now time.Time) time.Time {
	if r.schedule != nil {
		if base.Before(now) {
			base = now
		}
		return r.schedule.Next(base)
	}
	next := r.Next(base)
	for i := 0; !next.After(now) && i < 100000; i++ {
		next = r.Next(next)
	}
	return next
}
