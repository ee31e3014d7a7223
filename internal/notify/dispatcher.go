// Package notify turns race events into spoken or written announcements
// according to the user's notification preferences.
package notify

import (
	"context"
	"errors"

	"github.com/slotrace/rms/internal/monitoring"
	"github.com/slotrace/rms/internal/race"
	"github.com/slotrace/rms/internal/settings"
)

// MessageKeyPrefix prefixes the translation key of an event's default
// message.
const MessageKeyPrefix = "notifications."

// Preferences supplies the settings that decide whether and how an event is
// announced. settings.Store implements it.
type Preferences interface {
	Options() (settings.Options, error)
	Notifications() (map[string]settings.Notification, error)
}

// Sink delivers an announcement. Driver is nil for session wide events.
type Sink interface {
	Announce(ctx context.Context, message string, driver *race.Identity) error
}

// Line formats an announcement the way it is spoken.
func Line(message string, driver *race.Identity) string {
	if driver != nil && driver.Name != "" {
		return driver.Name + ": " + message
	}
	return message
}

// Dispatcher announces events on every sink.
type Dispatcher struct {
	prefs Preferences
	tr    race.Translator
	sinks []Sink
}

// NewDispatcher returns a Dispatcher. A nil translator uses DefaultMessages.
func NewDispatcher(prefs Preferences, tr race.Translator, sinks ...Sink) *Dispatcher {
	if tr == nil {
		tr = DefaultMessages
	}
	return &Dispatcher{prefs: prefs, tr: tr, sinks: sinks}
}

// Message returns the text announced for ev, or false when speech or the
// event's notification is switched off. A custom message takes precedence
// over the translated default.
func (d *Dispatcher) Message(ctx context.Context, ev race.Event) (string, bool, error) {
	opts, err := d.prefs.Options()
	if err != nil {
		return "", false, err
	}
	if !opts.Speech {
		return "", false, nil
	}
	prefs, err := d.prefs.Notifications()
	if err != nil {
		return "", false, err
	}
	n, ok := prefs[string(ev.Kind)]
	if !ok || !n.Enabled {
		return "", false, nil
	}
	if n.Message != "" {
		return n.Message, true, nil
	}
	msg, err := d.tr.Translate(ctx, MessageKeyPrefix+string(ev.Kind), 0)
	if err != nil {
		return "", false, err
	}
	return msg, true, nil
}

// Handle announces one event. Every sink is tried; their errors are joined.
func (d *Dispatcher) Handle(ctx context.Context, ev race.Event) error {
	monitoring.Debugf("notify: race event %s", ev.Kind)
	msg, ok, err := d.Message(ctx, ev)
	if err != nil || !ok {
		return err
	}
	var errs []error
	for _, s := range d.sinks {
		if err := s.Announce(ctx, msg, ev.Driver); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run announces events until the channel closes or ctx is done. Failures
// are logged and do not stop the loop.
func (d *Dispatcher) Run(ctx context.Context, events <-chan race.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := d.Handle(ctx, ev); err != nil {
				monitoring.Logf("notify: announcing %s: %v", ev.Kind, err)
			}
		}
	}
}
