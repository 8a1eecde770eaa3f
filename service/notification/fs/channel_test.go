package fs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"
	"github.com/vantus/warden/service/notification"
)

func TestChannelSend(t *testing.T) {
	ctx := context.Background()
	baseURL := "mem://localhost/notifications"
	channel := New(baseURL)
	assert.Equal(t, "fs", channel.Name())

	recipient := notification.ApproverInfo{UserID: "a1", Email: "a1@example.com"}
	message := &notification.Message{
		Kind:      notification.KindApprovalRequested,
		RequestID: "apr-000000000001",
		AgentID:   "agent-1",
		Subject:   "Approval required for agent agent-1",
	}
	assert.NoError(t, channel.Send(ctx, recipient, message))

	fs := afs.New()
	objects, err := fs.List(ctx, baseURL+"/apr-000000000001")
	assert.NoError(t, err)

	var found bool
	for _, object := range objects {
		if object.IsDir() {
			continue
		}
		data, dErr := fs.DownloadWithURL(ctx, object.URL())
		assert.NoError(t, dErr)
		var stored record
		assert.NoError(t, json.Unmarshal(data, &stored))
		assert.Equal(t, "a1", stored.Recipient.UserID)
		assert.Equal(t, "apr-000000000001", stored.Message.RequestID)
		found = true
	}
	assert.True(t, found)
}
