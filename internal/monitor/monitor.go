package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/iotmon/internal/device"
	"github.com/nerrad567/iotmon/internal/infrastructure/config"
	"github.com/nerrad567/iotmon/internal/notify"
	"github.com/nerrad567/iotmon/internal/probe"
)

// Builder creates the prober and notification dispatcher for a
// configuration. It is called again whenever the configuration is reloaded.
type Builder func(cfg *config.Config) (probe.Prober, *notify.Dispatcher, error)

// Options configures a Monitor.
type Options struct {
	// ConfigPath is the file watched for changes.
	ConfigPath string

	// ConfigModTime is the modification time of ConfigPath read before the
	// configuration passed to New was loaded. A file whose time differs is
	// reloaded on the next reconciliation.
	ConfigModTime time.Time

	Devices     device.Repository
	Transitions device.TransitionLog

	// Build creates the prober and dispatcher. Required.
	Build Builder

	Observers []Observer
	Logger    Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Report summarises one cycle.
type Report struct {
	CycleID     string    `json:"cycle_id"`
	StartedAt   time.Time `json:"started_at"`
	Duration    string    `json:"duration"`
	Probed      int       `json:"probed"`
	Reachable   int       `json:"reachable"`
	Transitions int       `json:"transitions"`
	Notified    int       `json:"notified"`
	Errors      int       `json:"errors"`
	Reconciled  bool      `json:"reconciled"`
	Purged      int64     `json:"purged"`
}

// Monitor owns the probe cycle.
//
// Thread Safety:
//   - Run must be called from a single goroutine.
//   - LastReport and Config are safe to call concurrently with Run.
type Monitor struct {
	configPath  string
	devices     device.Repository
	transitions device.TransitionLog
	build       Builder
	observers   []Observer
	logger      Logger
	now         func() time.Time

	mu         sync.RWMutex
	cfg        *config.Config
	cfgModTime time.Time
	prober     probe.Prober
	dispatcher *notify.Dispatcher
	last       Report
}

// New creates a Monitor running with cfg until the file at
// opts.ConfigPath changes.
func New(cfg *config.Config, opts Options) (*Monitor, error) {
	if cfg == nil {
		return nil, errors.New("monitor: config is required")
	}
	if opts.Devices == nil || opts.Transitions == nil {
		return nil, errors.New("monitor: device repository and transition log are required")
	}
	if opts.Build == nil {
		return nil, errors.New("monitor: builder is required")
	}

	m := &Monitor{
		configPath:  opts.ConfigPath,
		devices:     opts.Devices,
		transitions: opts.Transitions,
		build:       opts.Build,
		observers:   opts.Observers,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	if m.now == nil {
		m.now = time.Now
	}

	prober, dispatcher, err := m.prepare(cfg)
	if err != nil {
		return nil, err
	}
	m.install(cfg, opts.ConfigModTime, prober, dispatcher)
	return m, nil
}

// prepare builds the prober and dispatcher for cfg without installing them.
func (m *Monitor) prepare(cfg *config.Config) (probe.Prober, *notify.Dispatcher, error) {
	prober, dispatcher, err := m.build(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("building probe and notification channels: %w", err)
	}
	if dispatcher == nil {
		dispatcher = notify.NewDispatcher()
	}
	return prober, dispatcher, nil
}

// install makes cfg, loaded from a file with modification time modTime,
// the configuration in force.
func (m *Monitor) install(cfg *config.Config, modTime time.Time, prober probe.Prober, dispatcher *notify.Dispatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.cfgModTime = modTime
	m.prober = prober
	m.dispatcher = dispatcher
}

// Config returns the configuration currently in force.
func (m *Monitor) Config() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// LastReport returns the report of the most recent completed cycle.
func (m *Monitor) LastReport() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func (m *Monitor) loadedModTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfgModTime
}

func (m *Monitor) current() (*config.Config, probe.Prober, *notify.Dispatcher) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg, m.prober, m.dispatcher
}

// Start prepares the registry before the first cycle: it rebuilds the
// registry if the configuration changed since the last run or the registry
// is empty, then flushes the notification outbox.
func (m *Monitor) Start(ctx context.Context) error {
	existing, err := m.devices.List(ctx)
	if err != nil {
		return fmt.Errorf("loading device registry: %w", err)
	}

	if _, err := m.reconcile(ctx, m.logger, len(existing) == 0); err != nil {
		return err
	}

	m.flushOutbox(ctx, m.logger)
	return nil
}

// Run calls Start and then runs cycles until ctx is cancelled. It returns
// nil on cancellation and ErrInternal if a cycle panicked.
func (m *Monitor) Run(ctx context.Context) error {
	cfg := m.Config()
	m.logger.Info("monitor starting",
		"devices", len(cfg.Devices),
		"ping_cycle", cfg.GetPingCycle().String(),
		"probe_method", cfg.Probe.Method,
	)

	if err := m.Start(ctx); err != nil {
		return err
	}

	for {
		if _, err := m.RunCycle(ctx); err != nil {
			return err
		}

		timer := time.NewTimer(m.Config().GetPingCycle())
		select {
		case <-ctx.Done():
			timer.Stop()
			m.logger.Info("monitor stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle runs one complete cycle. Failures of individual steps are logged
// and retried on the next cycle; only a recovered panic is returned.
func (m *Monitor) RunCycle(ctx context.Context) (report Report, err error) {
	report = Report{CycleID: uuid.NewString(), StartedAt: m.now()}
	log := withAttrs(m.logger, "cycle_id", report.CycleID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("cycle panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	reconciled, recErr := m.reconcile(ctx, log, false)
	if recErr != nil {
		log.Error("reconciliation failed", "error", recErr)
		report.Errors++
	}
	report.Reconciled = reconciled

	report.Purged = m.sweep(ctx, log)
	report.Notified += m.flushOutbox(ctx, log)

	m.probeAll(ctx, log, &report)

	report.Duration = time.Since(report.StartedAt).String()
	if ctx.Err() == nil {
		m.mu.Lock()
		m.last = report
		m.mu.Unlock()
	}

	log.Debug("cycle complete",
		"probed", report.Probed,
		"reachable", report.Reachable,
		"transitions", report.Transitions,
		"notified", report.Notified,
		"errors", report.Errors,
	)
	return report, nil
}

// probeAll probes every registered device, then evaluates and commits each
// result in address order.
func (m *Monitor) probeAll(ctx context.Context, log Logger, report *Report) {
	cfg, prober, _ := m.current()

	devices, err := m.devices.List(ctx)
	if err != nil {
		log.Error("loading device registry failed", "error", err)
		report.Errors++
		return
	}

	results := make([]probe.Result, len(devices))

	var (
		g         errgroup.Group
		panicOnce sync.Once
		panicked  any
	)
	g.SetLimit(max(cfg.Monitor.Workers, 1))
	for i, dev := range devices {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					panicOnce.Do(func() { panicked = r })
				}
			}()
			results[i] = probe.Run(ctx, prober, dev.Address)
			return nil
		})
	}
	_ = g.Wait()

	// Re-raise on the cycle goroutine so RunCycle reports it.
	if panicked != nil {
		panic(panicked)
	}

	// Probes cut short by shutdown say nothing about the devices.
	if ctx.Err() != nil {
		log.Info("cycle interrupted, discarding probe results")
		return
	}

	policy := device.Policy{NotifyUnconfirmedDown: cfg.Monitor.NotifyUnconfirmedDown}
	for i, dev := range devices {
		m.evaluate(ctx, log, dev, results[i], policy, report)
	}
}

// evaluate folds one probe result into dev, commits it and hands the
// committed transition to notification and observers.
func (m *Monitor) evaluate(ctx context.Context, log Logger, dev device.Device, res probe.Result, policy device.Policy, report *Report) {
	report.Probed++
	if res.Reachable {
		report.Reachable++
	}
	if res.Err != nil {
		log.Debug("probe error", "address", dev.Address, "error", res.Err)
	}

	out := device.Evaluate(dev, res.Reachable, m.now(), policy)

	tr, err := m.devices.Apply(ctx, out)
	if err != nil {
		log.Error("persisting device state failed",
			"address", dev.Address,
			"state", string(dev.State),
			"error", err,
		)
		report.Errors++
		return
	}

	for _, o := range m.observers {
		o.ObserveProbe(ctx, out.Device, res)
	}

	if tr == nil {
		if out.Write {
			log.Debug("failure suppressed",
				"address", dev.Address,
				"remaining", out.Device.CurrentSuppressCount,
			)
		}
		return
	}

	report.Transitions++
	log.Info("state changed",
		"address", tr.Address,
		"description", tr.Description,
		"from", string(tr.PreviousState),
		"to", string(tr.NewState),
		"notification", string(tr.Notification),
	)

	if tr.PendingNotification() {
		if m.deliver(ctx, log, *tr) {
			report.Notified++
		}
	}

	for _, o := range m.observers {
		o.ObserveTransition(ctx, *tr)
	}
}

// deliver dispatches the notification for a committed transition and marks
// it notified. Once dispatch has run the transition leaves the outbox,
// whatever the channels or ctx report, so a restart never repeats a message;
// it stays there only when dispatch never started.
func (m *Monitor) deliver(ctx context.Context, log Logger, tr device.Transition) bool {
	msg, err := notify.FromTransition(tr)
	if err != nil {
		log.Warn("skipping notification", "transition_id", tr.ID, "error", err)
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	_, _, dispatcher := m.current()
	if err := dispatcher.Dispatch(ctx, msg); err != nil {
		log.Warn("notification incomplete",
			"address", tr.Address,
			"transition_id", tr.ID,
			"error", err,
		)
	}

	if err := m.transitions.MarkNotified(context.WithoutCancel(ctx), tr.ID, m.now()); err != nil {
		log.Error("marking transition notified failed", "transition_id", tr.ID, "error", err)
		return false
	}
	return true
}

// flushOutbox delivers notifications that were committed but never marked
// as dispatched, e.g. because the process stopped in between.
func (m *Monitor) flushOutbox(ctx context.Context, log Logger) int {
	pending, err := m.transitions.PendingNotifications(ctx)
	if err != nil {
		log.Error("loading notification outbox failed", "error", err)
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	log.Info("flushing notification outbox", "pending", len(pending))
	sent := 0
	for _, tr := range pending {
		if ctx.Err() != nil {
			break
		}
		if m.deliver(ctx, log, tr) {
			sent++
		}
	}
	return sent
}
