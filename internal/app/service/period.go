package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidPeriod signals a malformed or non-positive ISO-8601 period.
var ErrInvalidPeriod = errors.New("invalid ISO-8601 period")

// Period is a date-based ISO-8601 period (P1M, P10D, P2W, P1Y6M...). Time
// components (PT...) are not accepted; link expiry is day-granular.
type Period struct {
	Years  int
	Months int
	Weeks  int
	Days   int
}

// ParsePeriod parses strings like "P5Y", "P1M", "P2W", "P10D" and
// combinations such as "P1Y6M15D". The period must be strictly positive.
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	if len(s) < 3 || (s[0] != 'P' && s[0] != 'p') {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}

	var p Period
	seen := map[byte]bool{}
	rest := s[1:]

	for len(rest) > 0 {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 || i == len(rest) {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
		}

		value, err := strconv.Atoi(rest[:i])
		if err != nil {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
		}

		unit := rest[i] &^ 0x20 // upper-case
		if seen[unit] {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
		}
		seen[unit] = true

		switch unit {
		case 'Y':
			p.Years = value
		case 'M':
			p.Months = value
		case 'W':
			p.Weeks = value
		case 'D':
			p.Days = value
		default:
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
		}
		rest = rest[i+1:]
	}

	if p.TotalDays() <= 0 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return p, nil
}

// MustParsePeriod is for process-wide constants loaded at startup.
func MustParsePeriod(s string) Period {
	p, err := ParsePeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}

// TotalDays normalizes the period with 30-day months and 12-month years.
// The coarse arithmetic is deliberate: expiry bounds are policy, not
// calendar math.
func (p Period) TotalDays() int {
	return (p.Years*12+p.Months)*30 + p.Weeks*7 + p.Days
}

// AddTo returns t advanced by the period.
func (p Period) AddTo(t time.Time) time.Time {
	return t.Add(time.Duration(p.TotalDays()) * 24 * time.Hour)
}

// String renders the period back in ISO-8601 form.
func (p Period) String() string {
	var b strings.Builder
	b.WriteByte('P')
	if p.Years > 0 {
		fmt.Fprintf(&b, "%dY", p.Years)
	}
	if p.Months > 0 {
		fmt.Fprintf(&b, "%dM", p.Months)
	}
	if p.Weeks > 0 {
		fmt.Fprintf(&b, "%dW", p.Weeks)
	}
	if p.Days > 0 {
		fmt.Fprintf(&b, "%dD", p.Days)
	}
	if b.Len() == 1 {
		b.WriteString("0D")
	}
	return b.String()
}
