package types

import (
	"encoding/json"
	"time"
)

// Event names carried in Envelope.Event.
const (
	// Server → client.
	EventSystemMetrics = "system_metrics"
	EventNotification  = "notification"
	EventError         = "error"

	// Client → server.
	EventRequestMetrics   = "request_metrics"
	EventSendNotification = "send_notification"
)

// Notification types produced by the server. Relayed notifications may carry
// any non-empty type string.
const (
	TypeUserActivity = "user_activity"
	TypePayment      = "payment"
	TypeSystem       = "system"
	TypeSecurity     = "security"
	TypeConnection   = "connection"
)

// Severity levels. This set is closed.
const (
	SeverityInfo    = "info"
	SeveritySuccess = "success"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// ValidSeverity reports whether s is one of the known severity levels.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// MetricsSnapshot is the current system-wide dashboard metrics.
type MetricsSnapshot struct {
	ActiveUsers  int64     `json:"activeUsers"`
	TotalRevenue int64     `json:"totalRevenue"`
	ServerLoad   float64   `json:"serverLoad"`
	Uptime       float64   `json:"uptime"`
	LastUpdate   time.Time `json:"lastUpdate"`
}

// Notification is a single fire-and-forget event broadcast to clients.
type Notification struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
}

// Envelope wraps every frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is the data of an "error" event. It is only ever sent to the
// connection whose request caused it.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode marshals payload and wraps it in an Envelope for event.
// A nil payload produces an envelope without data.
func Encode(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}
