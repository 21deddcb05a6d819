package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

const (
	slackMaxBlocks = 50
	// slackReservedBlocks accounts for header block + context block in each message
	slackReservedBlocks = 2
	slackMaxTransitions = slackMaxBlocks - slackReservedBlocks
)

// SlackNotifier posts replica transitions to a Slack incoming webhook.
type SlackNotifier struct {
	logger zerolog.Logger
	poster *httpPoster
	timing timingConfig
}

// SlackOption customizes SlackNotifier behavior.
type SlackOption func(*SlackNotifier)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(timing timingConfig) SlackOption {
	return func(s *SlackNotifier) {
		s.timing = timing
	}
}

// NewSlackNotifier creates a Slack notifier, or a noop notifier when the
// webhook URL is empty.
func NewSlackNotifier(logger zerolog.Logger, webhookURL string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; notifications disabled")
	}

	notifier := &SlackNotifier{
		logger: logger,
		timing: defaultTiming,
	}
	for _, opt := range opts {
		opt(notifier)
	}
	notifier.poster = newHTTPPoster(logger, "slack", webhookURL, "application/json", notifier.timing)

	return notifier
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, service string, transitions []Transition) error {
	if len(transitions) == 0 {
		return nil
	}

	for _, message := range buildSlackMessages(service, transitions) {
		payload, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("marshal slack payload: %w", err)
		}
		if err := n.poster.post(ctx, service, payload); err != nil {
			return err
		}
	}

	n.logger.Debug().
		Str("service", service).
		Int("transitions", len(transitions)).
		Msg("slack notification sent")

	return nil
}

func buildSlackMessages(service string, transitions []Transition) []slack.WebhookMessage {
	total := len(transitions)
	chunkTotal := (total + slackMaxTransitions - 1) / slackMaxTransitions
	messages := make([]slack.WebhookMessage, 0, chunkTotal)

	for i := 0; i < total; i += slackMaxTransitions {
		end := i + slackMaxTransitions
		if end > total {
			end = total
		}
		partIndex := (i / slackMaxTransitions) + 1
		messages = append(messages, buildSlackMessage(service, transitions[i:end], total, partIndex, chunkTotal))
	}
	return messages
}

func buildSlackMessage(service string, transitions []Transition, total, partIndex, partTotal int) slack.WebhookMessage {
	summary := fmt.Sprintf("Service %s: %d replica transition(s)", service, total)
	if partTotal > 1 {
		summary = fmt.Sprintf("%s (part %d/%d)", summary, partIndex, partTotal)
	}

	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", summary, false, false))
	contextBlock := slack.NewContextBlock("",
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Service: *%s*", service), false, false),
	)

	blocks := []slack.Block{header, contextBlock}
	for _, change := range transitions {
		blocks = append(blocks, buildTransitionBlock(change))
	}

	blockSet := slack.Blocks{BlockSet: blocks}
	return slack.WebhookMessage{
		Text:   summary,
		Blocks: &blockSet,
	}
}

func buildTransitionBlock(change Transition) slack.Block {
	title := fmt.Sprintf("*%s*: `%s` → `%s`", change.Replica, change.From, change.To)
	text := slack.NewTextBlockObject("mrkdwn", title, false, false)

	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject("mrkdwn", "*At:*\n"+change.At.UTC().Format(time.RFC3339), false, false),
	}

	return slack.NewSectionBlock(text, fields, nil)
}
