package report

import (
	"bytes"
	"fmt"
	"github.com/slack-go/slack"
	"k8s.io/klog/v2"
	"text/template"
	"time"
)

const slackReportTemplate = `
{{- if eq .Kind "blocked" }}
{{- .ArtifactID | printf ":no_entry: *Download blocked:* %s" }}
{{- if .Coordinate }}{{ printf "\nPackage: %s" .Coordinate }}{{ end }}
{{- if .Vulnerabilities }}{{ printf "\nVulnerabilities: %s" .Vulnerabilities }}{{ end }}
{{- if .Licenses }}{{ printf "\nLicenses: %s" .Licenses }}{{ end }}
{{- range .Violations }}
{{ printf "• %s: %d at or above %s" .Dimension .Count .Threshold }}
{{- end }}
{{- if .DetailsURL }}{{ printf "\n<%s|Details>" .DetailsURL }}{{ end }}
{{- if and .Reason (not .Violations) }}{{ printf "\nReason: %s" .Reason }}{{ end }}
{{- else }}
{{- .ArtifactID | printf ":unlock: *Override changed:* %s" }}
{{ printf "%s = %q" .Key .Value }}
{{- end }}
`

// SlackConfig identifies the Slack channel events are posted to.
type SlackConfig struct {
	Token     string
	ChannelID string
}

// SlackReport generates event reports suitable for display within a Slack message by implementing the
// ExportFormatter interface.
type SlackReport struct {
	client  *slack.Client
	channel string
}

// NewSlackReport returns a new SlackReport using the given SlackConfig.
func NewSlackReport(cfg SlackConfig, options ...slack.Option) *SlackReport {
	return &SlackReport{
		slack.New(cfg.Token, options...),
		cfg.ChannelID,
	}
}

// Export posts each report to Slack as a slack.Message composed of slack.Block objects.
func (sr *SlackReport) Export(reportMsgs []*string) error {
	headerSection := sr.GenerateTextBlock(fmt.Sprintf("Artifact scan gate update as of %s\n", time.Now().Format(time.RFC1123Z)))
	for _, msg := range reportMsgs {
		reportSection := sr.GenerateTextBlock(*msg)
		blockParts := []slack.Block{
			headerSection,
			reportSection,
			slack.NewDividerBlock(),
		}
		channelID, timestamp, err := sr.PostMessage(blockParts...)
		if err != nil {
			return err
		}
		klog.Infof("Message successfully sent to channel %s at %s", channelID, timestamp)
	}
	return nil
}

// Format renders each Event into a string suitable for use within a slack.Block.
func (sr *SlackReport) Format(events []*Event) ([]*string, error) {
	tmpl, err := template.New("slack").Parse(slackReportTemplate)
	if err != nil {
		return nil, err
	}

	reportMsgs := make([]*string, len(events))
	for i, e := range events {
		reportMsgs[i], err = sr.BuildReportMessage(tmpl, e)
		if err != nil {
			return nil, err
		}
	}
	return reportMsgs, nil
}

// BuildReportMessage constructs the message body for the given event.
func (sr *SlackReport) BuildReportMessage(tmpl *template.Template, event *Event) (*string, error) {
	var buffer bytes.Buffer
	err := tmpl.Execute(&buffer, event)
	msg := buffer.String()
	return &msg, err
}

// GenerateTextBlock returns a slack SectionBlock for the given input string.
func (sr *SlackReport) GenerateTextBlock(input string) slack.Block {
	b := slack.NewTextBlockObject("mrkdwn", input, false, false)
	return slack.NewSectionBlock(b, nil, nil)
}

// PostMessage sends the given slack.Block messages to the Slack channel configured for this report.
func (sr *SlackReport) PostMessage(blocks ...slack.Block) (string, string, error) {
	// Delay calls to client.PostMessage in order to avoid exceeding Slack's rate limit
	time.Sleep(1 * time.Second)
	return sr.client.PostMessage(sr.channel, slack.MsgOptionBlocks(blocks...))
}
