// Package report collects non-fatal warnings across all stages of a
// run so the operator sees the complete picture in one place at run
// end.
package report

import (
	"fmt"
	"io"
	"sync"

	"github.com/olekukonko/tablewriter"
)

// Class partitions warnings by the remediation they call for.
type Class string

const (
	// ClassTransfer covers per-node or per-phase transfer failures.
	ClassTransfer Class = "transfer"
	// ClassVerification covers networks missing from the destination.
	ClassVerification Class = "verification"
	// ClassFinalize covers failed finalize batches.
	ClassFinalize Class = "finalize"
	// ClassSkip records a run that had nothing to transfer.
	ClassSkip Class = "skip"
	// ClassGCEnable is distinguished from the generic classes: a node
	// left with GC disabled requires manual intervention.
	ClassGCEnable Class = "gc-enable"
)

// Warning is one recoverable problem observed during a run.
type Warning struct {
	Class   Class
	Subject string
	Message string
}

// Log is a concurrency-safe warning sink shared by all stages.
type Log struct {
	mu       sync.Mutex
	warnings []Warning
}

// NewLog creates an empty warning sink.
func NewLog() *Log {
	return &Log{}
}

// Add records a warning.
func (l *Log) Add(class Class, subject, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.warnings = append(l.warnings, Warning{
		Class:   class,
		Subject: subject,
		Message: fmt.Sprintf(format, args...),
	})
}

// Warnings returns a copy of all recorded warnings.
func (l *Log) Warnings() []Warning {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]Warning(nil), l.warnings...)
}

// Empty reports whether any warning has been recorded.
func (l *Log) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.warnings) == 0
}

// GCEnableFailures returns the subjects of all gc-enable warnings.
// These nodes still have garbage collection disabled.
func (l *Log) GCEnableFailures() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var nodes []string
	for _, w := range l.warnings {
		if w.Class == ClassGCEnable {
			nodes = append(nodes, w.Subject)
		}
	}
	return nodes
}

// Render writes the aggregated warning table to w. GC re-enable
// failures get an extra callout naming the manual remediation.
func (l *Log) Render(w io.Writer) {
	warnings := l.Warnings()
	if len(warnings) == 0 {
		return
	}

	fmt.Fprintf(w, "%d warning(s) during run:\n", len(warnings))

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Class", "Subject", "Message"})
	table.SetBorder(false)
	for _, warning := range warnings {
		table.Append([]string{string(warning.Class), warning.Subject, warning.Message})
	}
	table.Render()

	for _, node := range l.GCEnableFailures() {
		fmt.Fprintf(w, "ACTION REQUIRED: garbage collection is still disabled on %s; run `ghe-gc-enable` there manually\n", node)
	}
}
