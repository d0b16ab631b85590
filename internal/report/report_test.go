package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/stackbackup/internal/backup"
)

var started = time.Date(2026, 4, 12, 3, 0, 0, 0, time.UTC)

func ok() backup.StepResult { return backup.StepResult{Status: backup.StepOK} }

func sampleRun() backup.RunResult {
	outcomes := []backup.StackOutcome{
		{
			Stack: backup.Stack{Name: "a", Path: "/opt/stacks/a"},
			Stop:  ok(), Archive: ok(), Start: ok(),
			File:      &backup.ArchiveFile{Path: "/b/a/a_20260412-030000.tar", SizeBytes: 2048},
			Running:   2,
			Inspected: true,
		},
		{
			Stack:   backup.Stack{Name: "b", Path: "/opt/stacks/b"},
			Stop:    ok(),
			Archive: backup.StepResult{Status: backup.StepFailed, Message: "tar exited 2: disk error"},
			Start:   ok(),
		},
		{
			Stack: backup.Stack{Name: "c", Path: "/opt/stacks/c"},
			Stop:  ok(), Archive: ok(), Start: ok(),
			File: &backup.ArchiveFile{Path: "/b/c/c_20260412-030001.tar", SizeBytes: 1024},
		},
	}
	return backup.RunResult{
		Host:       "nas01",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Minute),
		Outcomes:   outcomes,
		Retention: backup.RetentionResult{
			MaxAgeDays: 28,
			Deleted:    []string{"/b/a/a_20260301-030000.tar", "/b/a/a_20260201-030000.tar"},
			FreedBytes: 4096,
		},
		Disk: backup.DiskUsage{
			Path:         "/b",
			Mount:        "/srv",
			TotalBytes:   100 << 30,
			UsedBytes:    95 << 30,
			FreeBytes:    5 << 30,
			UsedPercent:  95.0,
			ContentBytes: 3072,
			Available:    true,
		},
		Status:    backup.Aggregate(outcomes),
		Narrative: "line one\nline two",
	}
}

func TestRender_FailureScenario(t *testing.T) {
	text := Render(sampleRun())

	assert.True(t, strings.HasPrefix(text, "Docker Stacks Backup Report (FAILURE)\n"))
	assert.Contains(t, text, "3 processed, 1 failed")
	assert.Contains(t, text, "b: archive failed: tar exited 2: disk error")
	assert.Contains(t, text, "Usage: 95.0%")
	assert.Contains(t, text, "DISK USAGE CHECK (on /srv)")
	assert.Contains(t, text, "TOTAL SIZE OF NEW ARCHIVES")
	assert.Contains(t, text, "3.0 KiB")
	assert.Contains(t, text, "2 files deleted, 4.0 KiB freed")
	assert.True(t, strings.HasSuffix(text, "--- Full Log ---\nline one\nline two\n"))

	// Stacks keep their processing order, deleted names are sorted.
	assert.Less(t, strings.Index(text, "\na "), strings.Index(text, "\nb "))
	assert.Less(t, strings.Index(text, "a_20260201"), strings.Index(text, "a_20260301"))
}

func TestRender_Deterministic(t *testing.T) {
	assert.Equal(t, Render(sampleRun()), Render(sampleRun()))
}

func TestRender_EmptySections(t *testing.T) {
	r := backup.RunResult{
		StartedAt:  started,
		FinishedAt: started,
		Retention:  backup.RetentionResult{MaxAgeDays: 7},
		Disk:       backup.UnavailableUsage("/b", errors.New("statfs failed")),
		Status:     backup.StatusSuccess,
	}
	text := Render(r)
	assert.Contains(t, text, "- No new archives created.")
	assert.Contains(t, text, "No files older than 7 days were deleted.")
	assert.Contains(t, text, "Disk usage information not available. (statfs failed)")
}

func TestRenderLastRun(t *testing.T) {
	text := RenderLastRun(sampleRun())
	assert.Contains(t, text, "Status: FAILURE | Host: nas01\n")
	assert.Contains(t, text, "Took: 3m0s")
	assert.Contains(t, text, "Stacks: 3 processed, 1 failed | New archives: 2 (3.0 KiB)\n")
}

func TestSubject(t *testing.T) {
	r := sampleRun()
	assert.Equal(t, "[NAS] FAILURE: Docker Backup completed on nas01 (2026-04-12)", Subject("[NAS]", r))
	r.Status = backup.StatusSuccess
	assert.Equal(t, "SUCCESS: Docker Backup completed on nas01 (2026-04-12)", Subject("", r))
}

type fakeMailer struct {
	sent []Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func TestDeliver(t *testing.T) {
	m := &fakeMailer{}
	rp := &Reporter{Mailer: m, From: "backup@example.com", To: []string{"ops@example.com"}, Tag: "[NAS]"}
	r := sampleRun()

	require.NoError(t, rp.Deliver(context.Background(), r, "body"))
	require.Len(t, m.sent, 1)
	assert.Equal(t, Subject("[NAS]", r), m.sent[0].Subject)
	assert.Equal(t, "body", m.sent[0].Body)
	assert.Equal(t, []string{"ops@example.com"}, m.sent[0].To)
}

func TestDeliver_FailureIsDeliveryError(t *testing.T) {
	rp := &Reporter{Mailer: &fakeMailer{err: errors.New("connection refused")}}
	r := sampleRun()

	err := rp.Deliver(context.Background(), r, "body")
	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, backup.StatusFailure, r.Status)
}

func TestDeliver_Disabled(t *testing.T) {
	assert.NoError(t, (&Reporter{}).Deliver(context.Background(), sampleRun(), "body"))
}
