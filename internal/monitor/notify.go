package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

var slackHTTPClient = &http.Client{Timeout: 10 * time.Second}

// TelegramNotification is a pending Telegram delivery surfaced to the
// Transport layer, which owns the actual bot API call.
type TelegramNotification struct {
	SubscriberID int64
	TopicID      int64
	Message      string
}

// NotifySubscribers groups digests by topic, posts a Slack webhook message
// to every "slack" subscriber of that topic, and returns the "telegram"
// subscribers' pending notifications for the Transport layer to deliver.
func (e *Engine) NotifySubscribers(ctx context.Context, digests []Digest, runLabel string) ([]TelegramNotification, error) {
	if len(digests) == 0 {
		return nil, nil
	}

	byTopic := make(map[int64][]Digest)
	for _, d := range digests {
		byTopic[d.TopicID] = append(byTopic[d.TopicID], d)
	}

	var pending []TelegramNotification
	for topicID, topicDigests := range byTopic {
		subscribers, err := e.store.ListMonitorSubscribers(ctx, topicID, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("list subscribers: %w", err)
		}

		message := FormatDigestMessage(topicDigests, runLabel)

		for _, sub := range subscribers {
			switch sub.ChannelType {
			case "slack":
				var config struct {
					WebhookURL string `json:"webhook_url"`
				}
				if err := json.Unmarshal([]byte(sub.ChannelConfig), &config); err != nil || config.WebhookURL == "" {
					e.log.Warn().Int64("subscriber_id", sub.ID).Msg("slack subscriber missing webhook_url")
					continue
				}
				if err := sendSlackWebhook(ctx, config.WebhookURL, message); err != nil {
					e.log.Error().Err(err).Int64("subscriber_id", sub.ID).Msg("failed to send slack notification")
					continue
				}
				e.log.Info().Int64("subscriber_id", sub.ID).Msg("sent slack notification")

			case "telegram":
				pending = append(pending, TelegramNotification{
					SubscriberID: sub.ID,
					TopicID:      topicID,
					Message:      message,
				})
			}
		}
	}

	return pending, nil
}

func sendSlackWebhook(ctx context.Context, webhookURL, message string) error {
	body, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := slackHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
