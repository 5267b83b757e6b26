package severity

import (
	"fmt"
	"regexp"
	"strconv"
)

var summaryPattern = regexp.MustCompile(`^(\d+) critical, (\d+) high, (\d+) medium, (\d+) low$`)

// Issue is a single reported vulnerability or license concern.
type Issue struct {
	Severity Severity
	Ignored  bool
}

// Summary counts issues by severity. It is a value type: copies are independent and two summaries are equal
// (with ==) exactly when their String forms are equal.
type Summary struct {
	counts [4]int
}

// FromIssues counts the issues that are not ignored. Issues with an out-of-range severity are not counted.
func FromIssues(issues []Issue) Summary {
	var s Summary
	for _, issue := range issues {
		if issue.Ignored || !issue.Severity.valid() {
			continue
		}
		s.counts[issue.Severity]++
	}
	return s
}

// FromCounts builds a summary from explicit counts; negative counts are rejected.
func FromCounts(critical, high, medium, low int) (Summary, error) {
	if critical < 0 || high < 0 || medium < 0 || low < 0 {
		return Summary{}, fmt.Errorf("issue counts must be non-negative: %d critical, %d high, %d medium, %d low", critical, high, medium, low)
	}
	var s Summary
	s.counts[Critical] = critical
	s.counts[High] = high
	s.counts[Medium] = medium
	s.counts[Low] = low
	return s, nil
}

// Count returns the number of issues with exactly the given severity.
func (s Summary) Count(sev Severity) int {
	if !sev.valid() {
		return 0
	}
	return s.counts[sev]
}

// CountAtOrAbove sums the counts of every severity >= threshold.
func (s Summary) CountAtOrAbove(threshold Severity) int {
	total := 0
	for _, level := range Levels {
		if level >= threshold {
			total += s.counts[level]
		}
	}
	return total
}

func (s Summary) Total() int {
	return s.CountAtOrAbove(Low)
}

// String always emits all four fields, most severe first.
func (s Summary) String() string {
	return fmt.Sprintf("%d critical, %d high, %d medium, %d low",
		s.counts[Critical], s.counts[High], s.counts[Medium], s.counts[Low])
}

// ParseSummary reads the String form back. It returns false for anything that does not match the format exactly.
func ParseSummary(text string) (Summary, bool) {
	m := summaryPattern.FindStringSubmatch(text)
	if m == nil {
		return Summary{}, false
	}
	var counts [4]int
	for i, sev := range []Severity{Critical, High, Medium, Low} {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Summary{}, false
		}
		counts[sev] = n
	}
	return Summary{counts: counts}, true
}
