// Package fs provides a notification channel that drops every delivery as a
// JSON document under a base URL. Backed by viant/afs it works with any
// supported scheme (file, mem, s3, gs, …) and doubles as a durable delivery
// log for integrations that poll a shared location.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/vantus/warden/service/notification"
)

const channelName = "fs"

// Channel writes one JSON document per delivery.
type Channel struct {
	fs      afs.Service
	baseURL string
}

// New creates a channel writing under baseURL.
func New(baseURL string) *Channel {
	return &Channel{fs: afs.New(), baseURL: baseURL}
}

func (c *Channel) Name() string { return channelName }

// record is the persisted document layout.
type record struct {
	Recipient notification.ApproverInfo `json:"recipient"`
	Message   *notification.Message     `json:"message"`
	WrittenAt time.Time                 `json:"writtenAt"`
}

func (c *Channel) Send(ctx context.Context, recipient notification.ApproverInfo, message *notification.Message) error {
	data, err := json.Marshal(&record{
		Recipient: recipient,
		Message:   message,
		WrittenAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification for %v: %w", recipient.UserID, err)
	}
	URL := url.Join(c.baseURL, message.RequestID, uuid.New().String()+".json")
	if err = c.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewBuffer(data)); err != nil {
		return fmt.Errorf("failed to write notification %s: %w", URL, err)
	}
	return nil
}

var _ notification.Channel = (*Channel)(nil)
