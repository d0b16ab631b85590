package report

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"

	"github.com/kebairia/stackbackup/internal/backup"
)

const (
	separatorWidth = 72
	timeLayout     = "2006-01-02 15:04:05"
)

var separator = strings.Repeat("-", separatorWidth)

// Bytes formats a byte count the way every section of the report does.
func Bytes(n int64) string {
	if n < 0 {
		return "n/a"
	}
	return humanize.IBytes(uint64(n))
}

// Subject builds the mail subject line for a run.
func Subject(tag string, r backup.RunResult) string {
	host := r.Host
	if host == "" {
		host = "unknown host"
	}
	subject := fmt.Sprintf("%s: Docker Backup completed on %s (%s)",
		r.Status, host, r.StartedAt.Format("2006-01-02"))
	if tag != "" {
		subject = tag + " " + subject
	}
	return subject
}

// Render produces the plain-text report. The same RunResult always renders
// to the same text.
func Render(r backup.RunResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Docker Stacks Backup Report (%s)\n", r.Status)
	fmt.Fprintf(&b, "Host:     %s\n", r.Host)
	fmt.Fprintf(&b, "Started:  %s\n", r.StartedAt.Format(timeLayout))
	fmt.Fprintf(&b, "Finished: %s (took %s)\n", r.FinishedAt.Format(timeLayout), r.Duration().Round(time.Second))
	fmt.Fprintf(&b, "Stacks:   %d processed, %d failed\n\n", len(r.Outcomes), countFailed(r.Outcomes))

	writeStacks(&b, r.Outcomes)
	b.WriteString("\n")
	writeArchives(&b, r.Archives())
	b.WriteString("\n")
	writeRetention(&b, r.Retention)
	b.WriteString("\n")
	writeDisk(&b, r.Disk)

	b.WriteString("\n--- Full Log ---\n")
	b.WriteString(r.Narrative)
	b.WriteString("\n")
	return b.String()
}

func countFailed(outcomes []backup.StackOutcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			n++
		}
	}
	return n
}

func stepCell(s backup.StepResult) string {
	switch s.Status {
	case backup.StepOK:
		return "ok"
	case backup.StepSkipped:
		return "SKIPPED"
	default:
		return "FAILED"
	}
}

func writeStacks(b *strings.Builder, outcomes []backup.StackOutcome) {
	b.WriteString("STACKS (in processing order):\n")
	b.WriteString(separator + "\n")

	table := uitable.New()
	table.Separator = "  "
	table.MaxColWidth = 40
	table.RightAlign(4)
	table.AddRow("STACK", "STOP", "ARCHIVE", "START", "SIZE", "RUNNING", "RESULT")
	for _, o := range outcomes {
		size, running := "-", "-"
		if o.File != nil {
			size = Bytes(o.File.SizeBytes)
		}
		if o.Inspected {
			running = fmt.Sprint(o.Running)
		}
		result := "ok"
		if !o.Succeeded() {
			result = "FAILED"
		}
		table.AddRow(o.Stack.Name, stepCell(o.Stop), stepCell(o.Archive), stepCell(o.Start), size, running, result)
	}
	b.WriteString(table.String() + "\n")
	b.WriteString(separator + "\n")

	var failures []string
	for _, o := range outcomes {
		for _, step := range []struct {
			name   string
			result backup.StepResult
		}{{"stop", o.Stop}, {"archive", o.Archive}, {"start", o.Start}} {
			if step.result.Status == backup.StepFailed {
				failures = append(failures, fmt.Sprintf("  %s: %s failed: %s", o.Stack.Name, step.name, step.result.Message))
			}
		}
	}
	if len(failures) > 0 {
		b.WriteString("FAILURES:\n")
		b.WriteString(strings.Join(failures, "\n") + "\n")
		b.WriteString(separator + "\n")
	}
}

func writeArchives(b *strings.Builder, files []backup.ArchiveFile) {
	b.WriteString("SUMMARY OF CREATED ARCHIVES (Alphabetical by filename):\n")
	if len(files) == 0 {
		b.WriteString("- No new archives created.\n")
		return
	}

	sorted := append([]backup.ArchiveFile(nil), files...)
	sort.Slice(sorted, func(i, j int) bool {
		return filepath.Base(sorted[i].Path) < filepath.Base(sorted[j].Path)
	})

	var total int64
	table := uitable.New()
	table.Separator = "    "
	table.RightAlign(0)
	table.AddRow("SIZE", "FILENAME")
	for _, f := range sorted {
		total += f.SizeBytes
		table.AddRow(Bytes(f.SizeBytes), f.Path)
	}
	table.AddRow(Bytes(total), "TOTAL SIZE OF NEW ARCHIVES")

	b.WriteString(separator + "\n")
	b.WriteString(table.String() + "\n")
	b.WriteString(separator + "\n")
}

func writeRetention(b *strings.Builder, r backup.RetentionResult) {
	fmt.Fprintf(b, "RETENTION CLEANUP (Older than %d days):\n", r.MaxAgeDays)
	b.WriteString(separator + "\n")
	if r.Err != "" {
		fmt.Fprintf(b, "Cleanup failed: %s\n", r.Err)
	}
	if r.Count() == 0 {
		fmt.Fprintf(b, "No files older than %d days were deleted.\n", r.MaxAgeDays)
	} else {
		deleted := append([]string(nil), r.Deleted...)
		sort.Strings(deleted)
		b.WriteString("DELETED FILENAME\n")
		for _, name := range deleted {
			b.WriteString(name + "\n")
		}
		fmt.Fprintf(b, "%d files deleted, %s freed\n", r.Count(), Bytes(r.FreedBytes))
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(b, "SKIPPED %s: %s\n", s.Path, s.Reason)
	}
	b.WriteString(separator + "\n")
}

func writeDisk(b *strings.Builder, u backup.DiskUsage) {
	if !u.Available {
		b.WriteString("DISK USAGE CHECK:\n")
		b.WriteString("- Disk usage information not available.")
		if u.Err != "" {
			b.WriteString(" (" + u.Err + ")")
		}
		b.WriteString("\n")
		return
	}
	mount := u.Mount
	if mount == "" {
		mount = u.Path
	}
	fmt.Fprintf(b, "DISK USAGE CHECK (on %s):\n", mount)
	b.WriteString(separator + "\n")
	fmt.Fprintf(b, "Total: %s | Used: %s | Free: %s | Usage: %.1f%%\n",
		humanize.IBytes(u.TotalBytes), humanize.IBytes(u.UsedBytes), humanize.IBytes(u.FreeBytes), u.UsedPercent)
	fmt.Fprintf(b, "Backup Content Size (%s): %s\n", u.Path, Bytes(u.ContentBytes))
	b.WriteString(separator + "\n")
}

// RenderRetention renders only the retention section.
func RenderRetention(r backup.RetentionResult) string {
	var b strings.Builder
	writeRetention(&b, r)
	return b.String()
}

// RenderDisk renders only the disk usage section.
func RenderDisk(u backup.DiskUsage) string {
	var b strings.Builder
	writeDisk(&b, u)
	return b.String()
}

// RenderLastRun summarises a run loaded from the metadata file.
func RenderLastRun(r backup.RunResult) string {
	var total int64
	archives := r.Archives()
	for _, f := range archives {
		total += f.SizeBytes
	}
	var b strings.Builder
	b.WriteString("LAST RUN:\n")
	b.WriteString(separator + "\n")
	fmt.Fprintf(&b, "Status: %s | Host: %s\n", r.Status, r.Host)
	fmt.Fprintf(&b, "Started: %s | Took: %s\n", r.StartedAt.Format(timeLayout), r.Duration().Round(time.Second))
	fmt.Fprintf(&b, "Stacks: %d processed, %d failed | New archives: %d (%s)\n",
		len(r.Outcomes), countFailed(r.Outcomes), len(archives), Bytes(total))
	b.WriteString(separator + "\n")
	return b.String()
}
