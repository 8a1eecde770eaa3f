package warden

import (
	"github.com/vantus/warden/service/approval"
	"github.com/vantus/warden/service/history"
	"github.com/vantus/warden/service/messaging"
	"github.com/vantus/warden/tracing"
)

// Option customises a Service.
type Option func(s *Service)

// WithConfig sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) { s.config = config }
}

// WithStore sets the approval store. Defaults to the in-memory reference
// implementation.
func WithStore(store approval.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithHistory sets the invocation history provider used by the history-based
// triggers.
func WithHistory(provider history.Provider) Option {
	return func(s *Service) { s.history = provider }
}

// WithNotifier sets the notification fan-out.
func WithNotifier(notifier approval.Notifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

// WithEvents sets the lifecycle event queue. Defaults to an in-memory queue.
func WithEvents(queue messaging.Queue[approval.Event]) Option {
	return func(s *Service) { s.events = queue }
}

// WithTracing configures OpenTelemetry tracing for the engine. If outputFile
// is empty the stdout exporter is used; otherwise traces are written to the
// supplied file path. Safe to call multiple times – the first successful
// initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}
