// Package schedule parses the wall-clock schedule descriptor grammar
// (§6.2) and computes the next tick for a given schedule.
//
//	schedule   := "at:" timelist
//	            | "weekly:" weekday "," HHMM
//	            | "cron:" cron5
//	timelist   := HHMM ("," HHMM)*
//	HHMM       := HH ":" MM      (24h, user timezone)
//	cron5      := standard 5-field cron expression (UTC)
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Kind identifies which schedule grammar a descriptor uses.
type Kind int

const (
	KindAt Kind = iota
	KindWeekly
	KindCron
)

// Schedule is a parsed schedule descriptor, ready to compute ticks from.
type Schedule struct {
	Kind     Kind
	Times    []time.Time // for KindAt: HH:MM components, stored with zero date
	Weekday  time.Weekday
	TimeOfDay time.Time
	Expr     string // for KindCron: the 5-field expression, evaluated in UTC
	TZ       *time.Location
	parsed   cronlib.Schedule
}

var cronParser = cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow)

// Parse parses a schedule descriptor string in the given IANA timezone
// (used for "at:" and "weekly:"; "cron:" is always evaluated in UTC).
func Parse(s string, tz *time.Location) (*Schedule, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "at:"):
		return parseAt(strings.TrimPrefix(s, "at:"), tz)
	case strings.HasPrefix(s, "weekly:"):
		return parseWeekly(strings.TrimPrefix(s, "weekly:"), tz)
	case strings.HasPrefix(s, "cron:"):
		return parseCron(strings.TrimPrefix(s, "cron:"))
	default:
		return nil, fmt.Errorf("schedule: unrecognized descriptor %q (expected at:/weekly:/cron: prefix)", s)
	}
}

func parseHHMM(s string) (hour, min int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("schedule: invalid HH:MM %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("schedule: invalid hour in %q", s)
	}
	min, err = strconv.Atoi(parts[1])
	if err != nil || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("schedule: invalid minute in %q", s)
	}
	return hour, min, nil
}

func parseAt(s string, tz *time.Location) (*Schedule, error) {
	fields := strings.Split(s, ",")
	if len(fields) == 0 || s == "" {
		return nil, fmt.Errorf("schedule: at: requires at least one HH:MM")
	}
	times := make([]time.Time, 0, len(fields))
	for _, f := range fields {
		hour, min, err := parseHHMM(f)
		if err != nil {
			return nil, err
		}
		times = append(times, time.Date(0, 1, 1, hour, min, 0, 0, time.UTC))
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return &Schedule{Kind: KindAt, Times: times, TZ: tz}, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func parseWeekly(s string, tz *time.Location) (*Schedule, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("schedule: weekly: requires <weekday>,HH:MM")
	}
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(parts[0]))]
	if !ok {
		return nil, fmt.Errorf("schedule: unknown weekday %q", parts[0])
	}
	hour, min, err := parseHHMM(parts[1])
	if err != nil {
		return nil, err
	}
	return &Schedule{
		Kind:      KindWeekly,
		Weekday:   wd,
		TimeOfDay: time.Date(0, 1, 1, hour, min, 0, 0, time.UTC),
		TZ:        tz,
	}, nil
}

func parseCron(expr string) (*Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("schedule: empty cron expression")
	}
	parsed, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid cron expression %q: %w", expr, err)
	}
	return &Schedule{Kind: KindCron, Expr: expr, TZ: time.UTC, parsed: parsed}, nil
}

// NextTick returns the smallest strictly-future instant (relative to now)
// satisfying the schedule.
func (s *Schedule) NextTick(now time.Time) (time.Time, error) {
	switch s.Kind {
	case KindAt:
		return s.nextAt(now), nil
	case KindWeekly:
		return s.nextWeekly(now), nil
	case KindCron:
		return s.parsed.Next(now.In(time.UTC)), nil
	default:
		return time.Time{}, fmt.Errorf("schedule: unknown kind %d", s.Kind)
	}
}

func (s *Schedule) nextAt(now time.Time) time.Time {
	tz := s.TZ
	if tz == nil {
		tz = time.Local
	}
	local := now.In(tz)
	y, m, d := local.Date()

	var best time.Time
	for day := 0; day < 2; day++ {
		base := time.Date(y, m, d+day, 0, 0, 0, 0, tz)
		for _, t := range s.Times {
			candidate := base.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
			if candidate.After(now) {
				if best.IsZero() || candidate.Before(best) {
					best = candidate
				}
			}
		}
		if !best.IsZero() {
			break
		}
	}
	return best
}

func (s *Schedule) nextWeekly(now time.Time) time.Time {
	tz := s.TZ
	if tz == nil {
		tz = time.Local
	}
	local := now.In(tz)
	y, m, d := local.Date()

	for day := 0; day < 8; day++ {
		base := time.Date(y, m, d+day, 0, 0, 0, 0, tz)
		if base.Weekday() != s.Weekday {
			continue
		}
		candidate := base.Add(time.Duration(s.TimeOfDay.Hour())*time.Hour + time.Duration(s.TimeOfDay.Minute())*time.Minute)
		if candidate.After(now) {
			return candidate
		}
	}
	// Unreachable in practice: a week always contains the weekday again.
	return now.AddDate(0, 0, 7)
}
