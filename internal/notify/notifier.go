package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/iotmon/internal/infrastructure/config"
)

const defaultSendTimeout = 30 * time.Second

// Notifier is implemented by every notification channel.
type Notifier interface {
	// Type returns the channel name, e.g. "email".
	Type() string

	// Send delivers m. Implementations must honour ctx cancellation.
	Send(ctx context.Context, m Message) error
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Dispatcher fans a message out to all channels.
//
// Thread Safety:
//   - Dispatch may be called from multiple goroutines.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	logger    Logger
}

// NewDispatcher returns a dispatcher over notifiers. With no notifiers,
// Dispatch succeeds without doing anything.
func NewDispatcher(notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		timeout:   defaultSendTimeout,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger used to report per-channel outcomes.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	d.logger = logger
}

// SetTimeout bounds each channel's Send.
func (d *Dispatcher) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.timeout = timeout
	}
}

// Channels returns the configured channel types in order.
func (d *Dispatcher) Channels() []string {
	types := make([]string, len(d.notifiers))
	for i, n := range d.notifiers {
		types[i] = n.Type()
	}
	return types
}

// Dispatch sends m to every channel concurrently and waits for all of them.
//
// The returned error joins one ErrDelivery-wrapped error per failed channel;
// it is nil when every channel succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, m Message) error {
	errs := make([]error, len(d.notifiers))

	var wg sync.WaitGroup
	for i, n := range d.notifiers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			if err := n.Send(sendCtx, m); err != nil {
				errs[i] = fmt.Errorf("%w: %s: %w", ErrDelivery, n.Type(), err)
				d.logger.Warn("notification failed",
					"channel", n.Type(),
					"address", m.Address,
					"transition_id", m.TransitionID,
					"error", err,
				)
				return
			}
			d.logger.Info("notification sent",
				"channel", n.Type(),
				"address", m.Address,
				"kind", string(m.Kind),
			)
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// FromConfig builds the enabled channels. publisher is used by the MQTT
// channel and may be nil when MQTT is disabled or unavailable, in which case
// the channel is skipped.
func FromConfig(cfg config.NotifyConfig, publisher Publisher) ([]Notifier, error) {
	var notifiers []Notifier

	if cfg.Email.Enabled {
		notifiers = append(notifiers, NewEmailNotifier(cfg.Email))
	}

	if cfg.Telegram.Enabled {
		tg, err := NewTelegramNotifier(cfg.Telegram)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, tg)
	}

	if cfg.MQTT.Enabled && publisher != nil {
		notifiers = append(notifiers, NewMQTTNotifier(publisher))
	}

	return notifiers, nil
}
