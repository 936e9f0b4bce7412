// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/job-harvester/internal/discovery"
	"github.com/jonathan/job-harvester/internal/output"
	"github.com/jonathan/job-harvester/internal/retryq"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRunSummary outputs the end-of-run statistics.
func (p *Printer) PrintRunSummary(stats *output.RunStats) {
	if stats == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Sites:     %d\n", stats.SitesTotal))
	sb.WriteString(fmt.Sprintf("Succeeded: %d\n", stats.Succeeded))
	sb.WriteString(fmt.Sprintf("Failed:    %d\n", stats.Failed))
	sb.WriteString(fmt.Sprintf("Retrying:  %d\n", stats.Retried))
	if stats.Undispatched > 0 {
		sb.WriteString(fmt.Sprintf("Skipped:   %d (run halted early)\n", stats.Undispatched))
	}
	sb.WriteString(fmt.Sprintf("Job URLs:  %d\n", stats.JobURLs))
	sb.WriteString(fmt.Sprintf("Duration:  %s\n", stats.Duration().Round(time.Millisecond)))

	if len(stats.ByMethod) > 0 {
		sb.WriteString("\nBy method:\n")
		for _, method := range sortedKeys(stats.ByMethod) {
			sb.WriteString(fmt.Sprintf("  • %s: %d\n", method, stats.ByMethod[method]))
		}
	}

	if len(stats.ByErrorType) > 0 {
		sb.WriteString("\nBy error type:\n")
		for _, kind := range sortedKeys(stats.ByErrorType) {
			sb.WriteString(fmt.Sprintf("  • %s: %d\n", kind, stats.ByErrorType[kind]))
		}
	}

	title := "HARVEST RUN SUMMARY"
	if stats.RateLimited {
		title = "HARVEST RUN SUMMARY (halted: rate limited)"
	}
	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintOutcome outputs one site's discovery outcome.
func (p *Printer) PrintOutcome(o discovery.Outcome) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Company:  %s\n", o.Site.Company))
	sb.WriteString(fmt.Sprintf("URL:      %s\n", o.Site.URL))

	switch {
	case o.IsRateLimited():
		sb.WriteString("Status:   rate limited\n")
		if o.RateLimit != nil {
			sb.WriteString(fmt.Sprintf("Cooldown: %s\n", o.RateLimit.Cooldown))
		}
	case o.IsSuccess():
		sb.WriteString(fmt.Sprintf("Method:   %s\n", o.Method))
		sb.WriteString(fmt.Sprintf("Found:    %d job URLs\n", len(o.JobURLs)))

		count := min(len(o.JobURLs), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s\n", o.JobURLs[i]))
		}
		if len(o.JobURLs) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(o.JobURLs)-maxItemsToShow))
		}
	default:
		sb.WriteString(fmt.Sprintf("Error:    %s\n", o.Failure.Kind))
		sb.WriteString(fmt.Sprintf("Message:  %s\n", o.Failure.Message))
		if o.Failure.HTTPStatus != nil {
			sb.WriteString(fmt.Sprintf("HTTP:     %d\n", *o.Failure.HTTPStatus))
		}
	}

	p.printBox("DISCOVERY OUTCOME", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintRetryQueue outputs the pending retry records with their
// next-eligible times.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintRetryQueue(records []retryq.Record, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "RETRY QUEUE EMPTY")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Pending retries: %d\n\n", len(records)))

	count := min(len(records), maxItemsToShow)
	for i := 0; i < count; i++ {
		rec := records[i]
		sb.WriteString(fmt.Sprintf("• %s (%s, attempt %d)\n", rec.Company, rec.Kind, rec.Attempts))
		if rec.NextEligible.After(now) {
			sb.WriteString(fmt.Sprintf("  due in %s\n", rec.NextEligible.Sub(now).Round(time.Second)))
		} else {
			sb.WriteString("  due now\n")
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(records) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more", len(records)-maxItemsToShow))
	}

	p.printBox("RETRY QUEUE", sb.String())
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
