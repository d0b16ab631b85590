package operations

import (
	"context"
	"errors"
	"time"

	"github.com/juju/clock"

	"github.com/kebairia/stackbackup/internal/backup"
	"github.com/kebairia/stackbackup/internal/logger"
	"github.com/kebairia/stackbackup/internal/stack"
)

// Archiver creates the archive of one stopped stack.
type Archiver interface {
	Create(ctx context.Context, s backup.Stack, destDir string, ts time.Time) (backup.ArchiveFile, error)
}

// Sweeper removes expired archives.
type Sweeper interface {
	Sweep(destDir string, maxAgeDays int) backup.RetentionResult
}

// Prober snapshots disk usage. It must not fail.
type Prober interface {
	Probe(dir string) backup.DiskUsage
}

// Settings are the plain values a run needs.
type Settings struct {
	Host          string
	Stacks        []backup.Stack
	Destination   string
	RetentionDays int
}

// State is where a stack is in its backup cycle.
type State int

const (
	StatePending State = iota
	StateStopping
	StateArchiving
	StateStarting
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStopping:
		return "stopping"
	case StateArchiving:
		return "archiving"
	case StateStarting:
		return "starting"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Orchestrator runs the stop/archive/start cycle over every stack, one at a
// time, then sweeps retention and probes the disk.
type Orchestrator struct {
	settings  Settings
	lifecycle stack.Lifecycle
	archiver  Archiver
	sweeper   Sweeper
	prober    Prober
	inspector stack.Inspector
	clock     clock.Clock
	log       logger.Logger
	narrative interface{ String() string }
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithInspector enables the post-start container count.
func WithInspector(in stack.Inspector) OrchestratorOption {
	return func(o *Orchestrator) { o.inspector = in }
}

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) OrchestratorOption {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l logger.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithNarrative attaches the run narrative copied into the result.
func WithNarrative(n interface{ String() string }) OrchestratorOption {
	return func(o *Orchestrator) { o.narrative = n }
}

// NewOrchestrator wires the collaborators of a run.
func NewOrchestrator(
	settings Settings,
	lifecycle stack.Lifecycle,
	archiver Archiver,
	sweeper Sweeper,
	prober Prober,
	opts ...OrchestratorOption,
) (*Orchestrator, error) {
	if lifecycle == nil || archiver == nil || sweeper == nil || prober == nil {
		return nil, errors.New("orchestrator: lifecycle, archiver, sweeper and prober are required")
	}
	o := &Orchestrator{
		settings:  settings,
		lifecycle: lifecycle,
		archiver:  archiver,
		sweeper:   sweeper,
		prober:    prober,
		clock:     clock.WallClock,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run processes every stack in order and assembles the RunResult. A failing
// stack never stops the others.
func (o *Orchestrator) Run(ctx context.Context) backup.RunResult {
	startedAt := o.clock.Now()
	o.log.Info("processing stacks sequentially (stop -> archive -> start)",
		"stacks", len(o.settings.Stacks),
		"destination", o.settings.Destination,
	)

	outcomes := make([]backup.StackOutcome, 0, len(o.settings.Stacks))
	for _, s := range o.settings.Stacks {
		outcome := o.processStack(ctx, s)
		if outcome.Succeeded() {
			o.log.Info("stack backed up", "stack", s.Name)
		} else {
			o.log.Error("stack backup failed", "stack", s.Name, "failed_steps", outcome.FailedSteps())
		}
		outcomes = append(outcomes, outcome)
	}

	o.log.Info("running retention cleanup", "max_age_days", o.settings.RetentionDays)
	retention := o.sweeper.Sweep(o.settings.Destination, o.settings.RetentionDays)

	disk := o.prober.Probe(o.settings.Destination)
	if disk.Available {
		o.log.Info("disk usage",
			"mount", disk.Mount,
			"used_percent", disk.UsedPercent,
			"free_bytes", disk.FreeBytes,
		)
	}

	status := backup.Aggregate(outcomes)
	finishedAt := o.clock.Now()
	o.log.Info("run finished", "status", string(status), "duration", finishedAt.Sub(startedAt).String())

	result := backup.RunResult{
		Host:       o.settings.Host,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Outcomes:   outcomes,
		Retention:  retention,
		Disk:       disk,
		Status:     status,
	}
	if o.narrative != nil {
		result.Narrative = o.narrative.String()
	}
	return result
}

// processStack drives one stack from Pending to Done. Every path ends in
// Done with a recorded outcome, and Starting is always visited.
func (o *Orchestrator) processStack(ctx context.Context, s backup.Stack) backup.StackOutcome {
	out := backup.StackOutcome{Stack: s}
	o.log.Info("starting backup for stack", "stack", s.Name, "path", s.Path)

	state := StatePending
	for state != StateDone {
		next := o.step(ctx, state, &out)
		o.log.Info("stack transition", "stack", s.Name, "from", state.String(), "to", next.String())
		state = next
	}
	return out
}

func (o *Orchestrator) step(ctx context.Context, state State, out *backup.StackOutcome) State {
	s := out.Stack
	switch state {
	case StatePending:
		return StateStopping

	case StateStopping:
		o.log.Info("stopping stack", "stack", s.Name)
		out.Stop = o.timed(func() error { return o.lifecycle.Stop(ctx, s) })
		if !out.Stop.OK() {
			o.log.Error("stop failed, skipping archive", "stack", s.Name, "error", out.Stop.Message)
			out.Archive = backup.StepResult{Status: backup.StepSkipped, Message: "stop failed"}
			return StateStarting
		}
		return StateArchiving

	case StateArchiving:
		var file backup.ArchiveFile
		out.Archive = o.timed(func() error {
			var err error
			file, err = o.archiver.Create(ctx, s, o.settings.Destination, o.clock.Now())
			return err
		})
		if out.Archive.OK() {
			out.File = &file
		} else {
			o.log.Error("archiving failed, restarting stack", "stack", s.Name, "error", out.Archive.Message)
		}
		return StateStarting

	case StateStarting:
		o.log.Info("starting stack", "stack", s.Name)
		out.Start = o.timed(func() error { return o.lifecycle.Start(ctx, s) })
		if !out.Start.OK() {
			o.log.Error("start failed, stack may be down", "stack", s.Name, "error", out.Start.Message)
			return StateDone
		}
		if o.inspector != nil {
			n, err := o.inspector.Running(ctx, s)
			if err != nil {
				o.log.Warn("could not count running containers", "stack", s.Name, "error", err.Error())
			} else {
				out.Running, out.Inspected = n, true
				if n == 0 {
					o.log.Warn("stack started but no containers are running", "stack", s.Name)
				}
			}
		}
		return StateDone
	}
	return StateDone
}

func (o *Orchestrator) timed(fn func() error) backup.StepResult {
	start := o.clock.Now()
	err := fn()
	res := backup.StepResult{Status: backup.StepOK, Duration: o.clock.Now().Sub(start)}
	if err != nil {
		res.Status = backup.StepFailed
		res.Message = err.Error()
	}
	return res
}
