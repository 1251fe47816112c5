package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ReloadPoller periodically checks the trigger marker and drives a reconcile
// when it changed. Polling and a TriggerWatcher can coexist: Reconcile is
// idempotent and NeedsReconcile fires once per actual change.
type ReloadPoller struct {
	logger    zerolog.Logger
	manager   *Manager
	cron      *cron.Cron
	interval  time.Duration
	allowList []string
}

// NewReloadPoller creates a poller checking every interval (default 5s).
func NewReloadPoller(logger zerolog.Logger, manager *Manager, interval time.Duration, allowList []string) *ReloadPoller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ReloadPoller{
		logger:    logger.With().Str("component", "reload-poller").Logger(),
		manager:   manager,
		cron:      cron.New(),
		interval:  interval,
		allowList: allowList,
	}
}

// Start schedules the poll job and starts the scheduler.
func (p *ReloadPoller) Start() error {
	spec := fmt.Sprintf("@every %s", p.interval)
	if _, err := p.cron.AddFunc(spec, p.poll); err != nil {
		return fmt.Errorf("failed to schedule reload poll: %w", err)
	}

	p.cron.Start()
	p.logger.Info().Dur("interval", p.interval).Msg("Reload poller started")
	return nil
}

// Stop stops the scheduler and waits for a running poll to finish.
func (p *ReloadPoller) Stop() {
	<-p.cron.Stop().Done()
	p.logger.Info().Msg("Reload poller stopped")
}

func (p *ReloadPoller) poll() {
	if !p.manager.NeedsReconcile() {
		return
	}

	summary := p.manager.Reconcile(context.Background(), p.allowList)
	if summary.Empty() {
		return
	}
	p.logger.Info().
		Strs("loaded", summary.Loaded).
		Strs("unloaded", summary.Unloaded).
		Msg("Hot reload applied")
}
