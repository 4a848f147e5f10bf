package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nusantararadius/notifyhub/pkg/types"
)

const webhookTimeout = 10 * time.Second

// webhookFormat renders the announced notification for one kind of target.
type webhookFormat func(n types.Notification, a *Alert) ([]byte, error)

// webhookFormats is keyed by config.WebhookConfig.Type.
var webhookFormats = map[string]webhookFormat{
	"slack": slackBody,
	"teams": teamsBody,
	"http":  envelopeBody,
}

// severityMarks prefixes Slack text by notification severity.
var severityMarks = map[string]string{
	types.SeverityInfo:    ":information_source:",
	types.SeveritySuccess: ":white_check_mark:",
	types.SeverityWarning: ":warning:",
	types.SeverityError:   ":rotating_light:",
}

// severityColors are Teams card theme colors by notification severity.
var severityColors = map[string]string{
	types.SeverityInfo:    "3B82F6",
	types.SeveritySuccess: "22C55E",
	types.SeverityWarning: "F59E0B",
	types.SeverityError:   "EF4444",
}

// deliver forwards n, the notification published for a, to every
// configured webhook target. Failures are logged only.
func (e *Engine) deliver(n types.Notification, a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		body, err := webhookFormats[wh.Type](n, a)
		if err == nil {
			err = e.post(url, a, body)
		}
		if err != nil {
			slog.Error("alerts: webhook delivery failed", "type", wh.Type, "rule", a.RuleName, "id", n.ID, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "id", n.ID, "state", a.State)
	}
}

func slackBody(n types.Notification, _ *Alert) ([]byte, error) {
	return json.Marshal(map[string]string{
		"text": fmt.Sprintf("%s *%s*\n%s", severityMarks[n.Severity], n.Title, n.Message),
	})
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsSection struct {
	Facts []teamsFact `json:"facts"`
}

type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []teamsSection `json:"sections"`
}

func teamsBody(n types.Notification, a *Alert) ([]byte, error) {
	return json.Marshal(teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: severityColors[n.Severity],
		Summary:    n.Title,
		Title:      n.Title,
		Text:       n.Message,
		Sections: []teamsSection{{Facts: []teamsFact{
			{Name: "Rule", Value: a.RuleName},
			{Name: "Condition", Value: a.Condition},
			{Name: "Value", Value: strconv.FormatFloat(a.Value, 'f', 2, 64)},
			{Name: "State", Value: a.State},
			{Name: "Notification", Value: strconv.FormatInt(n.ID, 10)},
		}}},
	})
}

// envelopeBody posts the same "notification" frame connected clients
// receive, so generic receivers can share the client decoder.
func envelopeBody(n types.Notification, _ *Alert) ([]byte, error) {
	return types.Encode(types.EventNotification, n)
}

func (e *Engine) post(url string, a *Alert, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Notifyhub-Rule", a.RuleName)
	req.Header.Set("X-Notifyhub-State", a.State)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
