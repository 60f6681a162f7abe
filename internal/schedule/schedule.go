// Package schedule parses and evaluates the schedules of recurring goals.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

const (
	KindCron     = "cron"
	KindInterval = "interval"
	KindOnce     = "once"
)

var ErrInvalid = errors.New("invalid schedule")

type Schedule struct {
	Kind       string `json:"kind"`                  // cron, interval or once
	CronExpr   string `json:"cron_expr,omitempty"`   // kind=cron
	IntervalMs int64  `json:"interval_ms,omitempty"` // kind=interval
	AtMs       int64  `json:"at_ms,omitempty"`       // kind=once, unix ms
}

func Parse(raw string) (*Schedule, error) {
	var s Schedule
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Schedule) validate() error {
	switch s.Kind {
	case KindCron:
		if !gronx.New().IsValid(s.CronExpr) {
			return fmt.Errorf("%w: bad cron expression %q", ErrInvalid, s.CronExpr)
		}
	case KindInterval:
		if s.IntervalMs <= 0 {
			return fmt.Errorf("%w: interval_ms must be positive", ErrInvalid)
		}
	case KindOnce:
		if s.AtMs <= 0 {
			return fmt.Errorf("%w: at_ms must be positive", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalid, s.Kind)
	}
	return nil
}

// NextRun returns the first run strictly after now, or nil when the
// schedule will not fire again.
func NextRun(raw string, now time.Time) (*time.Time, error) {
	s, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	var next time.Time
	switch s.Kind {
	case KindCron:
		next, err = gronx.NextTickAfter(s.CronExpr, now, false)
		if err != nil {
			return nil, fmt.Errorf("next tick for %q: %w", s.CronExpr, err)
		}
	case KindInterval:
		next = now.Add(time.Duration(s.IntervalMs) * time.Millisecond)
	case KindOnce:
		next = time.UnixMilli(s.AtMs)
		if !next.After(now) {
			return nil, nil
		}
	}
	next = next.UTC()
	return &next, nil
}

// Normalize turns user input into schedule JSON. It accepts schedule JSON,
// a cron expression, "every <duration>" and an RFC 3339 time for a single
// run.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	var s Schedule
	switch {
	case strings.HasPrefix(raw, "{"):
		p, err := Parse(raw)
		if err != nil {
			return "", err
		}
		s = *p

	case strings.HasPrefix(raw, "every "):
		d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(raw, "every ")))
		if err != nil || d <= 0 {
			return "", fmt.Errorf("%w: bad interval %q", ErrInvalid, raw)
		}
		s = Schedule{Kind: KindInterval, IntervalMs: d.Milliseconds()}

	default:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			s = Schedule{Kind: KindOnce, AtMs: t.UnixMilli()}
			break
		}
		if !gronx.New().IsValid(raw) {
			return "", fmt.Errorf("%w: not JSON, an interval, a time or a cron expression: %s", ErrInvalid, raw)
		}
		s = Schedule{Kind: KindCron, CronExpr: raw}
	}

	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Describe returns a human-readable form of schedule JSON.
func Describe(raw string) string {
	s, err := Parse(raw)
	if err != nil {
		return raw
	}

	switch s.Kind {
	case KindCron:
		return "cron " + s.CronExpr
	case KindInterval:
		d := time.Duration(s.IntervalMs) * time.Millisecond
		switch {
		case d%time.Hour == 0:
			if h := int(d.Hours()); h != 1 {
				return fmt.Sprintf("every %d hours", h)
			}
			return "every hour"
		case d%time.Minute == 0:
			if m := int(d.Minutes()); m != 1 {
				return fmt.Sprintf("every %d minutes", m)
			}
			return "every minute"
		default:
			return "every " + d.String()
		}
	default:
		return "once at " + time.UnixMilli(s.AtMs).UTC().Format("2006-01-02 15:04 MST")
	}
}
