package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	gonotify "github.com/nikoksr/notify"

	"github.com/slotrace/rms/internal/monitoring"
	"github.com/slotrace/rms/internal/race"
)

// LogSink writes announcements to the service log.
type LogSink struct{}

func (LogSink) Announce(_ context.Context, message string, driver *race.Identity) error {
	monitoring.Logf("announce: %s", Line(message, driver))
	return nil
}

// ServiceSink fans announcements out to notify services.
type ServiceSink struct {
	subject string
	n       *gonotify.Notify
}

// NewServiceSink sends every announcement with subject to services.
func NewServiceSink(subject string, services ...gonotify.Notifier) *ServiceSink {
	n := gonotify.New()
	n.UseServices(services...)
	return &ServiceSink{subject: subject, n: n}
}

func (s *ServiceSink) Announce(ctx context.Context, message string, driver *race.Identity) error {
	if err := s.n.Send(ctx, s.subject, Line(message, driver)); err != nil {
		return fmt.Errorf("failed to send announcement: %w", err)
	}
	return nil
}

// WriterService is a notify service printing one line per message.
type WriterService struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterService(w io.Writer) *WriterService {
	return &WriterService{w: w}
}

// Send implements notify.Notifier.
func (s *WriterService) Send(ctx context.Context, subject, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if subject != "" {
		_, err := fmt.Fprintf(s.w, "[%s] %s\n", subject, message)
		return err
	}
	_, err := fmt.Fprintln(s.w, message)
	return err
}
