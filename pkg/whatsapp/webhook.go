package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"watgbridge/pkg/whatsapp/types"
)

// DecodeWebhook reads and validates a gateway webhook request and returns the
// decoded event envelope. When secret is non-empty the X-Webhook-Hmac header
// must carry a hex SHA-256 HMAC of the body.
func DecodeWebhook(r *http.Request, secret string) (*types.Event, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook body: %w", err)
	}

	if secret != "" {
		if err := verifySignature(body, r.Header.Get("X-Webhook-Hmac"), secret); err != nil {
			return nil, err
		}
	}

	var event types.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook event: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("webhook event has no type")
	}
	return &event, nil
}

func verifySignature(body []byte, signature, secret string) error {
	if signature == "" {
		return fmt.Errorf("missing webhook signature")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("invalid webhook signature")
	}
	return nil
}
