package report

import (
	"bytes"
	"k8s.io/klog/v2"
	"text/template"
	"time"
)

const reportTemplate = `{{ printf "Artifact scan gate events as of %s\n" .Date }}
{{ printf "----------------------------------------" }}
{{- range .Events }}
{{- if eq .Kind "blocked" }}
{{ .ArtifactID | printf "Blocked: %s" }}
{{- if .Coordinate }}{{ printf "\nPackage: %s" .Coordinate }}{{ end }}
{{- if .Vulnerabilities }}{{ printf "\nVulnerabilities: %s" .Vulnerabilities }}{{ end }}
{{- if .Licenses }}{{ printf "\nLicenses: %s" .Licenses }}{{ end }}
{{- range .Violations }}
{{ printf "%s: %d at or above %s" .Dimension .Count .Threshold }}
{{- end }}
{{- if .DetailsURL }}{{ printf "\nDetails: %s" .DetailsURL }}{{ end }}
{{- if and .Reason (not .Violations) }}{{ printf "\nReason: %s" .Reason }}{{ end }}
{{- else }}
{{ .ArtifactID | printf "Override changed: %s" }}
{{ printf "%s = %q" .Key .Value }}
{{- end }}
{{ printf "----------------------------------------" }}
{{- end }}
`

// TextReport produces text-based event reports by implementing the ExportFormatter interface.
type TextReport struct{}

// Export simply logs the text-based reports at the INFO level.
func (tr *TextReport) Export(reports []*string) error {
	for _, s := range reports {
		klog.Infof("GENERATED REPORT:\n%s", *s)
	}
	return nil
}

// Format converts the events to a single text-based report, suitable for logging.
func (tr *TextReport) Format(events []*Event) ([]*string, error) {
	report := &Report{
		time.Now().Format(time.RFC1123Z),
		events,
	}

	tmpl, err := template.New("report").Parse(reportTemplate)
	if err != nil {
		return nil, err
	}
	var buffer bytes.Buffer
	err = tmpl.Execute(&buffer, report)
	if err != nil {
		return nil, err
	}
	reportStr := buffer.String()
	return []*string{&reportStr}, nil
}
