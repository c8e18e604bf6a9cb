package taskstream

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/browsertypes"
)

// alertForwarder posts every alert above info severity (warn and severe) to
// an external webhook asynchronously.
// Forwarding failures are logged, never surfaced (spec §4.10, §7).
type alertForwarder struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

func newAlertForwarder(url string, log *slog.Logger) *alertForwarder {
	return &alertForwarder{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log,
	}
}

type webhookPayload struct {
	TaskId    string    `json:"task_id"`
	Severity  WatchdogSeverity `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (f *alertForwarder) forward(taskID browsertypes.TaskId, a Alert) {
	if f.url == "" || a.Severity == WatchdogInfo {
		return
	}
	go func() {
		body, err := json.Marshal(webhookPayload{
			TaskId:    string(taskID),
			Severity:  a.Severity,
			Message:   a.Message,
			Timestamp: a.Timestamp,
		})
		if err != nil {
			f.log.Warn("alert webhook marshal failed", "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
		if err != nil {
			f.log.Warn("alert webhook request build failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := f.client.Do(req)
		if err != nil {
			f.log.Warn("alert webhook delivery failed", "error", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			f.log.Warn("alert webhook returned error status", "status", resp.StatusCode)
		}
	}()
}
