// Package alert forwards anomaly alerts to an external HTTP endpoint.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const queueSize = 256

// Event is the JSON payload POSTed to the webhook.
type Event struct {
	Source    string    `json:"source"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// Webhook delivers events from a bounded queue on a background goroutine.
// Enqueue never blocks; when the queue is full the event is dropped.
type Webhook struct {
	url        string
	authHeader string // "Header: Value", e.g. "Authorization: Bearer xxx"
	client     *http.Client
	logger     *slog.Logger
	events     chan Event
	retryDelay time.Duration
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// NewWebhook starts a dispatcher posting to url. authHeader is optional.
func NewWebhook(url, authHeader string, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Webhook{
		url:        url,
		authHeader: authHeader,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With("component", "alert_webhook"),
		events:     make(chan Event, queueSize),
		retryDelay: time.Second,
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Enqueue schedules evt for delivery.
func (w *Webhook) Enqueue(evt Event) {
	select {
	case w.events <- evt:
	default:
		w.logger.Warn("queue full, dropping alert", "type", evt.Type)
	}
}

// Close stops accepting events and waits for the queue to drain.
func (w *Webhook) Close() {
	w.closeOnce.Do(func() { close(w.events) })
	w.wg.Wait()
}

func (w *Webhook) loop() {
	defer w.wg.Done()
	for evt := range w.events {
		w.send(evt)
	}
}

// send POSTs evt with one retry on a network error or 5xx.
func (w *Webhook) send(evt Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		w.logger.Warn("marshal failed", "error", err)
		return
	}
	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			time.Sleep(w.retryDelay)
		}
		status, err := w.post(body)
		switch {
		case err != nil:
			w.logger.Warn("request failed", "error", err, "attempt", attempt)
			continue
		case status >= 500:
			w.logger.Warn("server error", "status", status, "attempt", attempt)
			continue
		case status >= 400:
			w.logger.Warn("client error", "status", status)
		}
		return
	}
}

func (w *Webhook) post(body []byte) (int, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Storefront-Alert-Webhook/1.0")
	if name, value, ok := strings.Cut(w.authHeader, ":"); ok {
		req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
