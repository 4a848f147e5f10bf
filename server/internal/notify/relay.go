package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nusantararadius/notifyhub/pkg/types"
)

// Field limits for relayed notifications.
const (
	MaxTypeLen    = 64
	MaxTitleLen   = 200
	MaxMessageLen = 2000
)

// ErrInvalidPayload is wrapped by every relay validation failure.
var ErrInvalidPayload = errors.New("invalid notification payload")

// ValidationError describes why a relayed notification was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid notification: " + e.Reason
	}
	return fmt.Sprintf("invalid notification: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidPayload }

type relayRequest struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// FromRequest validates a client-submitted notification and completes it
// with a fresh ID and timestamp. Any id or timestamp in raw is ignored.
// Failures are *ValidationError values wrapping ErrInvalidPayload.
func FromRequest(raw []byte, ids *IDSource) (types.Notification, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return types.Notification{}, &ValidationError{Reason: "payload must be a JSON object"}
	}

	var req relayRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return types.Notification{}, &ValidationError{Field: typeErr.Field, Reason: "must be a string"}
		}
		return types.Notification{}, &ValidationError{Reason: "malformed JSON"}
	}

	n, err := validate(req)
	if err != nil {
		return types.Notification{}, err
	}
	ids.Stamp(&n)
	return n, nil
}

func validate(req relayRequest) (types.Notification, error) {
	switch {
	case strings.TrimSpace(req.Type) == "":
		return types.Notification{}, &ValidationError{Field: "type", Reason: "is required"}
	case len(req.Type) > MaxTypeLen:
		return types.Notification{}, &ValidationError{Field: "type", Reason: fmt.Sprintf("exceeds %d bytes", MaxTypeLen)}
	case strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Message) == "":
		return types.Notification{}, &ValidationError{Field: "title", Reason: "title or message is required"}
	case len(req.Title) > MaxTitleLen:
		return types.Notification{}, &ValidationError{Field: "title", Reason: fmt.Sprintf("exceeds %d bytes", MaxTitleLen)}
	case len(req.Message) > MaxMessageLen:
		return types.Notification{}, &ValidationError{Field: "message", Reason: fmt.Sprintf("exceeds %d bytes", MaxMessageLen)}
	}

	sev := req.Severity
	if sev == "" {
		sev = types.SeverityInfo
	}
	if !types.ValidSeverity(sev) {
		return types.Notification{}, &ValidationError{Field: "severity", Reason: fmt.Sprintf("unknown severity %q", sev)}
	}

	return types.Notification{
		Type:     req.Type,
		Title:    req.Title,
		Message:  req.Message,
		Severity: sev,
	}, nil
}

// Welcome builds the greeting sent to every newly connected client.
func Welcome(ids *IDSource) types.Notification {
	n := types.Notification{
		Type:     types.TypeConnection,
		Title:    "Connected to NusantaraRadius",
		Message:  "Real-time notifications are now active",
		Severity: types.SeveritySuccess,
	}
	ids.Stamp(&n)
	return n
}
