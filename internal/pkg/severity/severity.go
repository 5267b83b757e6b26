package severity

import (
	"errors"
	"fmt"
	"strings"
)

// Severity is the rank of a reported issue. The order of the constants is persisted (through Summary) and must
// never change.
type Severity int

const (
	Low Severity = iota
	Medium
	High
	Critical
)

// Levels lists every severity in ascending order.
var Levels = []Severity{Low, Medium, High, Critical}

var ErrUnknownSeverity = errors.New("unknown severity")

const noneThreshold = "none"

func (s Severity) String() string {
	switch s {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

func (s Severity) valid() bool {
	return s >= Low && s <= Critical
}

// Parse converts a case-insensitive severity name into a Severity.
func Parse(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return Low, nil
	case "medium":
		return Medium, nil
	case "high":
		return High, nil
	case "critical":
		return Critical, nil
	default:
		return Low, fmt.Errorf("%w: %q", ErrUnknownSeverity, s)
	}
}

// Threshold is the minimum severity at which issues block a download. The zero value is a LOW threshold; use
// NoThreshold for the "none" sentinel that never blocks.
type Threshold struct {
	severity Severity
	disabled bool
}

// AtOrAbove returns a threshold that blocks on issues of the given severity or higher.
func AtOrAbove(s Severity) Threshold {
	return Threshold{severity: s}
}

// NoThreshold returns the sentinel threshold that never blocks.
func NoThreshold() Threshold {
	return Threshold{disabled: true}
}

// ParseThreshold accepts any severity name or "none".
func ParseThreshold(s string) (Threshold, error) {
	if strings.EqualFold(strings.TrimSpace(s), noneThreshold) {
		return NoThreshold(), nil
	}
	sev, err := Parse(s)
	if err != nil {
		return Threshold{}, err
	}
	return AtOrAbove(sev), nil
}

// Severity returns the threshold's severity and false when the threshold is the "none" sentinel.
func (t Threshold) Severity() (Severity, bool) {
	return t.severity, !t.disabled
}

func (t Threshold) Disabled() bool {
	return t.disabled
}

func (t Threshold) String() string {
	if t.disabled {
		return noneThreshold
	}
	return t.severity.String()
}
