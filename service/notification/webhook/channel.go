// Package webhook provides a notification channel that POSTs each delivery
// as JSON to a configured endpoint. Requests can optionally carry a
// short-lived JWT minted with a key held in secret storage (viant/scy), so
// the receiving side can authenticate the engine without shared static
// secrets.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/viant/scy"
	"github.com/viant/scy/auth/jwt/signer"
	"github.com/vantus/warden/service/notification"
)

const channelName = "webhook"

// Config defines the webhook endpoint and optional request signing.
type Config struct {
	// Endpoint receives the JSON-encoded delivery via POST.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// RSAKeyURL or HMACKeyURL enable JWT signing of outbound requests. The
	// key is loaded through secret storage; KeySecret decrypts it when
	// encrypted.
	RSAKeyURL  string `json:"rsaKeyURL,omitempty" yaml:"rsaKeyURL,omitempty"`
	HMACKeyURL string `json:"hmacKeyURL,omitempty" yaml:"hmacKeyURL,omitempty"`
	KeySecret  string `json:"keySecret,omitempty" yaml:"keySecret,omitempty"`

	// TokenExpirySeconds bounds the token lifetime (default 300).
	TokenExpirySeconds int `json:"tokenExpirySec,omitempty" yaml:"tokenExpirySec,omitempty"`

	// TimeoutSeconds bounds each POST (default 10).
	TimeoutSeconds int `json:"timeoutSec,omitempty" yaml:"timeoutSec,omitempty"`
}

// Channel delivers notifications over HTTP. Send is safe for concurrent
// use.
type Channel struct {
	config     Config
	client     *http.Client
	signerOnce sync.Once
	signer     *signer.Service
	signerErr  error
}

// New creates a webhook channel. When the config enables signing the signer
// is initialised lazily on first use.
func New(config Config) *Channel {
	timeout := config.TimeoutSeconds
	if timeout <= 0 {
		timeout = 10
	}
	return &Channel{
		config: config,
		client: &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}
}

func (c *Channel) Name() string { return channelName }

type payload struct {
	Recipient notification.ApproverInfo `json:"recipient"`
	Message   *notification.Message     `json:"message"`
	SentAt    time.Time                 `json:"sentAt"`
}

func (c *Channel) Send(ctx context.Context, recipient notification.ApproverInfo, message *notification.Message) error {
	if c.config.Endpoint == "" {
		return fmt.Errorf("webhook endpoint is not configured")
	}
	data, err := json.Marshal(&payload{Recipient: recipient, Message: message, SentAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	if token, tErr := c.token(ctx, recipient, message); tErr != nil {
		return tErr
	} else if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := c.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode >= 300 {
		return fmt.Errorf("webhook %v returned status %v", c.config.Endpoint, response.StatusCode)
	}
	return nil
}

// token mints a short-lived JWT when signing is configured; otherwise it
// returns an empty string.
func (c *Channel) token(ctx context.Context, recipient notification.ApproverInfo, message *notification.Message) (string, error) {
	if c.config.RSAKeyURL == "" && c.config.HMACKeyURL == "" {
		return "", nil
	}
	c.signerOnce.Do(func() {
		config := &signer.Config{}
		if c.config.RSAKeyURL != "" {
			config.RSA = &scy.Resource{URL: c.config.RSAKeyURL, Key: c.config.KeySecret}
		} else {
			config.HMAC = &scy.Resource{URL: c.config.HMACKeyURL, Key: c.config.KeySecret}
		}
		jwtSigner := signer.New(config)
		if err := jwtSigner.Init(ctx); err != nil {
			c.signerErr = fmt.Errorf("failed to initialize webhook signer: %w", err)
			return
		}
		c.signer = jwtSigner
	})
	if c.signerErr != nil {
		return "", c.signerErr
	}
	expiry := c.config.TokenExpirySeconds
	if expiry <= 0 {
		expiry = 300
	}
	claims := map[string]interface{}{
		"sub":       recipient.UserID,
		"requestId": message.RequestID,
		"kind":      message.Kind,
	}
	token, err := c.signer.Create(time.Duration(expiry)*time.Second, claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign webhook token: %w", err)
	}
	return token, nil
}

var _ notification.Channel = (*Channel)(nil)
