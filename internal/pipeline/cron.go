package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronField is the set of values a field allows.
type cronField struct {
	any   bool
	allow []bool
}

func (f cronField) matches(v int) bool {
	return f.any || (v >= 0 && v < len(f.allow) && f.allow[v])
}

// schedule is a parsed five-field cron expression:
// minute hour day-of-month month day-of-week.
type schedule struct {
	minute, hour, dom, month, dow cronField
}

var cronBounds = [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 7}}

// parseSchedule accepts "*", single values, lists, ranges and steps
// ("*/15", "1-5", "0,30", "8-18/2"). Day-of-week 7 is Sunday.
func parseSchedule(expr string) (schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return schedule{}, fmt.Errorf("cron %q: want 5 fields, got %d", expr, len(parts))
	}
	var fields [5]cronField
	for i, p := range parts {
		f, err := parseCronField(p, cronBounds[i][0], cronBounds[i][1])
		if err != nil {
			return schedule{}, fmt.Errorf("cron %q field %d: %w", expr, i+1, err)
		}
		fields[i] = f
	}
	if !fields[4].any && fields[4].allow[7] {
		fields[4].allow[0] = true
	}
	return schedule{minute: fields[0], hour: fields[1], dom: fields[2], month: fields[3], dow: fields[4]}, nil
}

func parseCronField(s string, lo, hi int) (cronField, error) {
	if s == "*" {
		return cronField{any: true}, nil
	}
	f := cronField{allow: make([]bool, hi+1)}
	for _, item := range strings.Split(s, ",") {
		rng, stepStr, hasStep := strings.Cut(item, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return cronField{}, fmt.Errorf("bad step %q", stepStr)
			}
			step = n
		}

		from, to := lo, hi
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return cronField{}, fmt.Errorf("bad range %q", rng)
			}
			if to, err = strconv.Atoi(b); err != nil {
				return cronField{}, fmt.Errorf("bad range %q", rng)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return cronField{}, fmt.Errorf("bad value %q", rng)
			}
			from = v
			if hasStep {
				to = hi
			} else {
				to = v
			}
		}
		if from < lo || to > hi || from > to {
			return cronField{}, fmt.Errorf("%q outside %d-%d", item, lo, hi)
		}
		for v := from; v <= to; v += step {
			f.allow[v] = true
		}
	}
	return f, nil
}

func (s schedule) matches(t time.Time) bool {
	if !s.minute.matches(t.Minute()) || !s.hour.matches(t.Hour()) || !s.month.matches(int(t.Month())) {
		return false
	}
	domOK := s.dom.matches(t.Day())
	dowOK := s.dow.matches(int(t.Weekday()))
	if !s.dom.any && !s.dow.any {
		return domOK || dowOK
	}
	return domOK && dowOK
}

// next returns the first minute strictly after t that matches.
func (s schedule) next(t time.Time) (time.Time, error) {
	c := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(1, 0, 1)
	for ; c.Before(limit); c = c.Add(time.Minute) {
		if s.matches(c) {
			return c, nil
		}
	}
	return time.Time{}, fmt.Errorf("cron: no match within a year after %s", t.Format(time.RFC3339))
}
