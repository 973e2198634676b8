package syncer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// QuietHours — окно тишины в минутах от полуночи. Начало включительно,
// конец исключительно; окно через полночь (start > end) активно, когда
// текущее время >= start ИЛИ < end.
type QuietHours struct {
	startMin int
	endMin   int
	enabled  bool
}

func ParseQuietHours(start, end string) (QuietHours, error) {
	if start == "" && end == "" {
		return QuietHours{}, nil
	}
	s, err := parseClock(start)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet hours start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet hours end: %w", err)
	}
	return QuietHours{startMin: s, endMin: e, enabled: true}, nil
}

func parseClock(v string) (int, error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad time %q, want HH:MM", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", v)
	}
	return h*60 + m, nil
}

func (q QuietHours) IsActiveAt(t time.Time) bool {
	if !q.enabled || q.startMin == q.endMin {
		return false
	}
	cur := t.Hour()*60 + t.Minute()
	if q.startMin > q.endMin {
		return cur >= q.startMin || cur < q.endMin
	}
	return cur >= q.startMin && cur < q.endMin
}
