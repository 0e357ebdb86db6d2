package notify

import (
	"context"
	"net/http"

	"github.com/kektech/marketd/internal/crypto"
)

// WebhookSender delivers notifications to an arbitrary HTTP endpoint with an
// HMAC signature so the receiver can authenticate the delivery.
type WebhookSender struct {
	url    string
	signer *crypto.WebhookSigner
	client *http.Client
}

// NewWebhookSender creates a sender posting to url, signing every delivery
// with secret.
func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		signer: crypto.NewWebhookSigner(secret),
		client: &http.Client{Timeout: senderTimeout},
	}
}

// Send posts a JSON payload carrying the title and message, with signature
// headers attached.
func (w *WebhookSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, w.client, w.Name(), w.url, map[string]string{
		"title":   title,
		"message": message,
	}, w.signer.Headers)
}

func (w *WebhookSender) Name() string { return "webhook" }
