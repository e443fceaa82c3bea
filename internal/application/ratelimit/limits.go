package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-auth-nosql/internal/domain"
)

// Limit is a maximum number of hits per fixed window.
type Limit struct {
	Count  int64
	Window time.Duration
	expr   string
}

func (l Limit) String() string {
	if l.expr != "" {
		return l.expr
	}
	return fmt.Sprintf("%d per %s", l.Count, l.Window)
}

var units = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"month":  30 * 24 * time.Hour,
	"year":   365 * 24 * time.Hour,
}

// ParseLimits reads expressions such as "5 per hour;20 per day", "20/day" or
// "10 per 5 minutes". Separators are ';' or ','.
func ParseLimits(expr string) ([]Limit, error) {
	var out []Limit
	for _, part := range strings.FieldsFunc(expr, func(r rune) bool { return r == ';' || r == ',' }) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		l, err := parseLimit(part)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty rate limit %q: %w", expr, domain.ErrBadRequest)
	}
	return out, nil
}

// MustParseLimits is ParseLimits for compile-time constants.
func MustParseLimits(expr string) []Limit {
	l, err := ParseLimits(expr)
	if err != nil {
		panic(err)
	}
	return l
}

func parseLimit(s string) (Limit, error) {
	var countStr, rest string
	lower := strings.ToLower(s)
	if c, r, ok := strings.Cut(lower, "/"); ok {
		countStr, rest = c, r
	} else if c, r, ok := strings.Cut(lower, " per "); ok {
		countStr, rest = c, r
	} else {
		return Limit{}, fmt.Errorf("rate limit %q: want \"N per unit\": %w", s, domain.ErrBadRequest)
	}
	count, err := strconv.ParseInt(strings.TrimSpace(countStr), 10, 64)
	if err != nil || count <= 0 {
		return Limit{}, fmt.Errorf("rate limit %q: bad count: %w", s, domain.ErrBadRequest)
	}

	fields := strings.Fields(rest)
	multiplier := int64(1)
	switch len(fields) {
	case 1:
	case 2:
		multiplier, err = strconv.ParseInt(fields[0], 10, 64)
		if err != nil || multiplier <= 0 {
			return Limit{}, fmt.Errorf("rate limit %q: bad multiplier: %w", s, domain.ErrBadRequest)
		}
		fields = fields[1:]
	default:
		return Limit{}, fmt.Errorf("rate limit %q: bad window: %w", s, domain.ErrBadRequest)
	}
	unit, ok := units[strings.TrimSuffix(fields[0], "s")]
	if !ok {
		return Limit{}, fmt.Errorf("rate limit %q: unknown unit %q: %w", s, fields[0], domain.ErrBadRequest)
	}
	return Limit{Count: count, Window: time.Duration(multiplier) * unit, expr: s}, nil
}
