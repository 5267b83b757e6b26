package report

import "time"

// ExportFormatter formats gate events and exports the formatted messages.
type ExportFormatter interface {
	Export(reports []*string) error
	Format(events []*Event) ([]*string, error)
}

type EventKind string

const (
	// BlockedDownload is emitted when a download is refused.
	BlockedDownload EventKind = "blocked"
	// OverrideChanged is emitted when an operator sets a forceDownload property.
	OverrideChanged EventKind = "override"
)

type Event struct {
	Kind            EventKind
	Time            time.Time
	ArtifactID      string
	Coordinate      string
	Reason          string
	Vulnerabilities string
	Licenses        string
	DetailsURL      string
	Violations      []Violation
	Key             string
	Value           string
}

type Violation struct {
	Dimension string
	Threshold string
	Count     int
}

type Report struct {
	Date   string
	Events []*Event
}
