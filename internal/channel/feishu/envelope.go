package feishu

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"

	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
)

const (
	eventTypeURLVerification = "url_verification"
	eventTypeMessageReceive  = "im.message.receive_v1"
)

// Signature headers, sent when an encrypt key is configured
const (
	HeaderTimestamp = "X-Lark-Request-Timestamp"
	HeaderNonce     = "X-Lark-Request-Nonce"
	HeaderSignature = "X-Lark-Signature"
)

// envelope covers the fields shared by v1 callbacks, v2 events, the
// url_verification handshake and the encrypted wrapper
type envelope struct {
	Encrypt   string `json:"encrypt,omitempty"`
	Challenge string `json:"challenge,omitempty"`
	Token     string `json:"token,omitempty"`
	Type      string `json:"type,omitempty"`
	Schema    string `json:"schema,omitempty"`
	Header    *struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
		AppID     string `json:"app_id"`
		TenantKey string `json:"tenant_key"`
		Token     string `json:"token"`
	} `json:"header,omitempty"`
}

func (e *envelope) isChallenge() bool {
	return e.Type == eventTypeURLVerification && e.Challenge != ""
}

func (e *envelope) eventType() string {
	if e.Header != nil {
		return e.Header.EventType
	}
	return e.Type
}

// token returns the verification token for v2 (header) or v1 (top level)
func (e *envelope) token() string {
	if e.Header != nil && e.Header.Token != "" {
		return e.Header.Token
	}
	return e.Token
}

// decodeEnvelope parses body, decrypting it first when it is wrapped in
// {"encrypt": ...}. The returned bytes are the plaintext event.
func decodeEnvelope(body []byte, encryptKey string) (*envelope, []byte, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, fmt.Errorf("failed to decode feishu event: %w", err)
	}
	if env.Encrypt == "" {
		return &env, body, nil
	}
	if encryptKey == "" {
		return nil, nil, fmt.Errorf("encrypted feishu event but no encrypt key configured")
	}

	plain, err := larkevent.EventDecrypt(env.Encrypt, encryptKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt feishu event: %w", err)
	}
	var inner envelope
	if err := json.Unmarshal(plain, &inner); err != nil {
		return nil, nil, fmt.Errorf("failed to decode decrypted feishu event: %w", err)
	}
	return &inner, plain, nil
}

// signature is sha256(timestamp + nonce + encryptKey + body), hex encoded
func signature(timestamp, nonce, encryptKey string, body []byte) string {
	return larkevent.Signature(timestamp, nonce, encryptKey, string(body))
}

func equalString(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
