// Package memory provides an in-memory notification channel used by tests
// and embedded deployments that only need an inspectable delivery log.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vantus/warden/service/notification"
)

// Delivery records one successful Send.
type Delivery struct {
	Recipient notification.ApproverInfo
	Message   notification.Message
}

// Channel collects deliveries in memory. Failures can be injected per
// recipient to exercise channel fallback.
type Channel struct {
	name       string
	mu         sync.Mutex
	deliveries []Delivery
	failFor    map[string]bool
	failAll    bool
}

// New creates a channel registered under the supplied name.
func New(name string) *Channel {
	if name == "" {
		name = notification.DefaultChannel
	}
	return &Channel{name: name, failFor: make(map[string]bool)}
}

func (c *Channel) Name() string { return c.name }

// FailFor makes every Send to userID fail.
func (c *Channel) FailFor(userID string) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failFor[userID] = true
	return c
}

// FailAll toggles failure of every Send.
func (c *Channel) FailAll(fail bool) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAll = fail
	return c
}

func (c *Channel) Send(_ context.Context, recipient notification.ApproverInfo, message *notification.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll || c.failFor[recipient.UserID] {
		return fmt.Errorf("%v channel unavailable for %v", c.name, recipient.UserID)
	}
	c.deliveries = append(c.deliveries, Delivery{Recipient: recipient, Message: *message})
	return nil
}

// Deliveries returns a snapshot of recorded deliveries.
func (c *Channel) Deliveries() []Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Delivery, len(c.deliveries))
	copy(out, c.deliveries)
	return out
}

var _ notification.Channel = (*Channel)(nil)
