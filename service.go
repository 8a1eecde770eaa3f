package warden

import (
	"github.com/vantus/warden/service/approval"
	amemory "github.com/vantus/warden/service/approval/memory"
	"github.com/vantus/warden/service/history"
	"github.com/vantus/warden/service/messaging"
	mmemory "github.com/vantus/warden/service/messaging/memory"
)

// Service assembles the approval manager with its collaborators. Unset
// collaborators fall back to the in-memory reference implementations so a
// zero-configuration Service is immediately usable in tests and embedded
// deployments.
type Service struct {
	config   *Config
	store    approval.Store
	history  history.Provider
	notifier approval.Notifier
	events   messaging.Queue[approval.Event]
	manager  *approval.Manager
}

// New creates a Service customised by the supplied options.
func New(options ...Option) (*Service, error) {
	ret := &Service{}
	for _, option := range options {
		option(ret)
	}
	if ret.config == nil {
		ret.config = DefaultConfig()
	}
	if err := ret.config.Validate(); err != nil {
		return nil, err
	}
	if ret.store == nil {
		ret.store = amemory.New()
	}
	if ret.events == nil {
		ret.events = mmemory.NewQueue[approval.Event](mmemory.DefaultConfig())
	}

	managerOptions := []approval.ManagerOption{approval.WithEvents(ret.events)}
	if ret.history != nil {
		managerOptions = append(managerOptions, approval.WithHistory(ret.history))
	}
	if ret.notifier != nil {
		managerOptions = append(managerOptions, approval.WithNotifier(ret.notifier))
	}
	ret.manager = approval.NewManager(ret.config.Trigger, ret.config.Workflow, ret.store, managerOptions...)
	return ret, nil
}

// Manager returns the approval manager.
func (s *Service) Manager() *approval.Manager { return s.manager }

// Store returns the approval store.
func (s *Service) Store() approval.Store { return s.store }

// Events returns the lifecycle event queue.
func (s *Service) Events() messaging.Queue[approval.Event] { return s.events }

// Config returns the engine configuration.
func (s *Service) Config() *Config { return s.config }
