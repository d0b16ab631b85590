package operations

import (
	"context"
	"fmt"
	"os"

	"github.com/juju/clock"

	"github.com/kebairia/stackbackup/internal/archive"
	"github.com/kebairia/stackbackup/internal/config"
	"github.com/kebairia/stackbackup/internal/diskusage"
	"github.com/kebairia/stackbackup/internal/logger"
	"github.com/kebairia/stackbackup/internal/report"
	"github.com/kebairia/stackbackup/internal/retention"
	"github.com/kebairia/stackbackup/internal/stack"
	"github.com/kebairia/stackbackup/internal/vault"
)

// OperationManager owns the configuration and logging of one invocation and
// builds the components a command needs from it.
type OperationManager struct {
	ctx       context.Context
	cfg       config.Config
	log       *logger.Handle
	narrative *logger.Narrative
	clock     clock.Clock
}

// NewOperationManager loads, parses, and validates the YAML config at
// configPath and opens the run log.
func NewOperationManager(ctx context.Context, configPath string) (*OperationManager, error) {
	var cfg config.Config
	if err := cfg.Load(configPath); err != nil {
		return nil, err
	}
	return NewOperationManagerFromConfig(ctx, cfg)
}

// NewOperationManagerFromConfig is NewOperationManager for an already loaded
// configuration.
func NewOperationManagerFromConfig(ctx context.Context, cfg config.Config, opts ...logger.Option) (*OperationManager, error) {
	narrative := &logger.Narrative{}
	logOpts := []logger.Option{
		logger.WithLevel(cfg.Log.Level),
		logger.WithNarrative(narrative),
	}
	if cfg.Log.File != "" {
		logOpts = append(logOpts, logger.WithRunLog(cfg.Log.File))
	}
	logOpts = append(logOpts, opts...)

	log, err := logger.New(logOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrValidateConfig, err)
	}
	return &OperationManager{
		ctx:       ctx,
		cfg:       cfg,
		log:       log,
		narrative: narrative,
		clock:     clock.WallClock,
	}, nil
}

// Close flushes and closes the run log.
func (om *OperationManager) Close() error {
	return om.log.Close()
}

// Logger returns the run logger.
func (om *OperationManager) Logger() logger.Logger { return om.log }

// Settings turns the configuration into run settings.
func (om *OperationManager) Settings() Settings {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "UNKNOWN_HOST"
	}
	return Settings{
		Host:          host,
		Stacks:        om.cfg.StackList(),
		Destination:   om.cfg.Backup.Destination,
		RetentionDays: om.cfg.Backup.RetentionDays,
	}
}

func (om *OperationManager) prober() *diskusage.Probe {
	return diskusage.New(om.log)
}

func (om *OperationManager) sweeper() *retention.Sweeper {
	s := retention.New(om.log)
	s.Clock = om.clock
	return s
}

// Orchestrator builds the orchestrator and everything it drives. The returned
// func releases the Docker client, if one was opened.
func (om *OperationManager) Orchestrator() (*Orchestrator, func(), error) {
	b := om.cfg.Backup
	probe := om.prober()

	lifecycle := stack.NewCompose(
		stack.WithBinary(b.DockerBinary),
		stack.WithTimeouts(b.StopTimeout, b.StartTimeout),
		stack.WithStderrLimit(b.StderrLimit),
		stack.WithLogger(om.log),
	)
	archiver := archive.New(
		archive.WithBinary(b.TarBinary),
		archive.WithTimeout(b.ArchiveTimeout),
		archive.WithStderrLimit(b.StderrLimit),
		archive.WithFreeSpace(probe.FreeBytes),
		archive.WithLogger(om.log),
	)

	opts := []OrchestratorOption{
		WithClock(om.clock),
		WithLogger(om.log),
		WithNarrative(om.narrative),
	}
	cleanup := func() {}
	if b.InspectContainers {
		inspector, err := stack.NewDockerInspector()
		if err != nil {
			om.log.Warn("container inspection disabled", "error", err.Error())
		} else {
			opts = append(opts, WithInspector(inspector))
			cleanup = func() { _ = inspector.Close() }
		}
	}

	o, err := NewOrchestrator(om.Settings(), lifecycle, archiver, om.sweeper(), probe, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return o, cleanup, nil
}

// Reporter builds the reporter. Mail credentials come from Vault when
// mail.vault_path is set, and are only fetched when a report is sent.
func (om *OperationManager) Reporter() *report.Reporter {
	m := om.cfg.Mail
	rp := &report.Reporter{
		From:   m.From,
		To:     m.To,
		Tag:    m.SubjectTag,
		Logger: om.log,
	}
	if !m.Enabled {
		return rp
	}

	creds := report.StaticCredentials(m.Username, m.Password)
	if m.VaultPath != "" {
		creds = om.vaultCredentials(m.VaultPath)
	}
	rp.Mailer = &report.SMTPMailer{
		Host:        m.Host,
		Port:        m.Port,
		StartTLS:    m.StartTLS,
		Timeout:     m.Timeout,
		Credentials: creds,
	}
	return rp
}

func (om *OperationManager) vaultCredentials(path string) report.CredentialsFunc {
	return func(ctx context.Context) (string, string, error) {
		client, err := vault.NewClient(ctx,
			vault.WithAddress(om.cfg.Vault.Address),
			vault.WithAppRole(om.cfg.Vault.RoleID, om.cfg.Vault.ApproleName),
		)
		if err != nil {
			return "", "", fmt.Errorf("vault client init: %w", err)
		}
		creds, err := client.SMTPCredentials(ctx, path)
		if err != nil {
			return "", "", err
		}
		return creds.Username, creds.Password, nil
	}
}
