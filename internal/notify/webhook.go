package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/rs/zerolog"
)

const defaultWebhookTemplate = `{"service":"{{ .Service }}","transitions":{{ toJson .Transitions }}}`

// WebhookPayload is the template context for webhook notifications.
type WebhookPayload struct {
	Service     string
	Transitions []Transition
	GeneratedAt time.Time
}

// WebhookNotifier sends transition notifications to a generic webhook.
type WebhookNotifier struct {
	logger   zerolog.Logger
	template *template.Template
	poster   *httpPoster
}

// NewWebhookNotifier creates a webhook notifier with the provided template.
// An empty URL yields a nil notifier (callers filter it out via
// NewMultiNotifier).
func NewWebhookNotifier(logger zerolog.Logger, webhookURL string, tmpl string) (*WebhookNotifier, error) {
	if webhookURL == "" {
		return nil, nil
	}
	if tmpl == "" {
		tmpl = defaultWebhookTemplate
	}

	parsed, err := template.New("webhook").Funcs(template.FuncMap{
		"toJson": func(v any) (string, error) {
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(encoded), nil
		},
	}).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse webhook template: %w", err)
	}

	return &WebhookNotifier{
		logger:   logger,
		template: parsed,
		poster:   newHTTPPoster(logger, "webhook", webhookURL, "application/json", defaultTiming),
	}, nil
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, service string, transitions []Transition) error {
	if n == nil || len(transitions) == 0 {
		return nil
	}

	payload := WebhookPayload{
		Service:     service,
		Transitions: transitions,
		GeneratedAt: time.Now().UTC(),
	}

	var buf bytes.Buffer
	if err := n.template.Execute(&buf, payload); err != nil {
		return fmt.Errorf("render webhook template: %w", err)
	}

	if err := n.poster.post(ctx, service, buf.Bytes()); err != nil {
		return err
	}

	n.logger.Debug().
		Str("service", service).
		Int("transitions", len(transitions)).
		Msg("webhook notification sent")

	return nil
}
