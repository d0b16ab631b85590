package backup

import "time"

// Status is the aggregate result of a run.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// StepStatus is the result of one sub-step of a stack cycle.
type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// Stack describes one compose stack to back up.
type Stack struct {
	// Name identifies the stack and prefixes its archive files.
	Name string `json:"name"`
	// Path is the stack directory holding the compose definition.
	Path string `json:"path"`
}

// StepResult records how a single stop, archive or start step ended.
type StepResult struct {
	Status   StepStatus    `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ms"`
}

// OK reports whether the step succeeded.
func (s StepResult) OK() bool { return s.Status == StepOK }

// ArchiveFile is a single archive produced for a stack.
type ArchiveFile struct {
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
}

// StackOutcome is the recorded result of one stack's stop/archive/start cycle.
type StackOutcome struct {
	Stack   Stack        `json:"stack"`
	Stop    StepResult   `json:"stop"`
	Archive StepResult   `json:"archive"`
	Start   StepResult   `json:"start"`
	File    *ArchiveFile `json:"file,omitempty"`

	// Running is the number of running containers seen after start.
	// It is only meaningful when Inspected is true.
	Running   int  `json:"running"`
	Inspected bool `json:"inspected"`
}

// Succeeded reports whether every sub-step of the cycle succeeded.
func (o StackOutcome) Succeeded() bool {
	return o.Stop.OK() && o.Archive.OK() && o.Start.OK()
}

// FailedSteps returns the names of the sub-steps that did not succeed.
func (o StackOutcome) FailedSteps() []string {
	var steps []string
	if !o.Stop.OK() {
		steps = append(steps, "stop")
	}
	if !o.Archive.OK() {
		steps = append(steps, "archive")
	}
	if !o.Start.OK() {
		steps = append(steps, "start")
	}
	return steps
}

// SkippedFile is an archive the retention sweep selected but could not delete.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// RetentionResult summarises one retention sweep.
type RetentionResult struct {
	MaxAgeDays int           `json:"max_age_days"`
	Deleted    []string      `json:"deleted"`
	FreedBytes int64         `json:"freed_bytes"`
	Skipped    []SkippedFile `json:"skipped,omitempty"`
	Err        string        `json:"error,omitempty"`
}

// Count returns the number of deleted archives.
func (r RetentionResult) Count() int { return len(r.Deleted) }

// UnknownPercent marks DiskUsage.UsedPercent when the probe failed.
const UnknownPercent = -1

// DiskUsage is a snapshot of the destination volume.
type DiskUsage struct {
	Path        string  `json:"path"`
	Mount       string  `json:"mount,omitempty"`
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`

	// ContentBytes is the size of the destination tree itself.
	ContentBytes int64  `json:"content_bytes"`
	Available    bool   `json:"available"`
	Err          string `json:"error,omitempty"`
}

// UnavailableUsage returns the sentinel reported when the probe fails.
func UnavailableUsage(path string, err error) DiskUsage {
	u := DiskUsage{
		Path:         path,
		UsedPercent:  UnknownPercent,
		ContentBytes: -1,
	}
	if err != nil {
		u.Err = err.Error()
	}
	return u
}

// RunResult is everything a run produced. It is assembled once and then
// only read.
type RunResult struct {
	Host       string          `json:"host"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Outcomes   []StackOutcome  `json:"outcomes"`
	Retention  RetentionResult `json:"retention"`
	Disk       DiskUsage       `json:"disk"`
	Status     Status          `json:"status"`
	Narrative  string          `json:"-"`
}

// Duration returns the wall time of the run.
func (r RunResult) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Archives returns the archive files created during the run, in stack order.
func (r RunResult) Archives() []ArchiveFile {
	var files []ArchiveFile
	for _, o := range r.Outcomes {
		if o.File != nil {
			files = append(files, *o.File)
		}
	}
	return files
}

// Aggregate derives the run status from the stack outcomes.
func Aggregate(outcomes []StackOutcome) Status {
	for _, o := range outcomes {
		if !o.Succeeded() {
			return StatusFailure
		}
	}
	return StatusSuccess
}
