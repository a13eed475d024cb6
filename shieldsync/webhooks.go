package shieldsync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/veltashop/shieldsync_backend/config"
	"github.com/veltashop/shieldsync_backend/models"
)

// Topics the Shield side must deliver to this backend.
var expectedWebhookTopics = []string{"order.create", "order.update", "order.cancel"}

// WebhookReconciler keeps the remote webhook registrations in line with the
// expected set: create what is missing, repoint what drifted.
type WebhookReconciler struct {
	Client   Client
	Settings SettingsReader
	Logger   *logrus.Logger
}

func NewWebhookReconciler(client Client, settings SettingsReader) *WebhookReconciler {
	return &WebhookReconciler{
		Client:   client,
		Settings: settings,
		Logger:   config.GetLogger(),
	}
}

func webhookURL(base string, topic string) string {
	return strings.TrimRight(base, "/") + "/webhooks/shield/" + topic
}

func (r *WebhookReconciler) Upsert(ctx context.Context) error {
	base, ok, err := r.Settings.Option(ctx, models.SettingKeyWebhookBaseURL)
	if err != nil {
		return err
	}
	if !ok || strings.TrimSpace(base) == "" {
		// Nothing to validate against until the operator configures the
		// public callback URL.
		return nil
	}

	res, terr := r.Client.ListWebhooks(ctx)
	if terr != nil {
		return nil
	}
	if res.Status != 200 {
		config.LogError(r.Logger, "shieldsync", "Upsert", "webhooks", map[string]interface{}{
			"method":   "GET",
			"endpoint": "webhooks",
			"status":   res.Status,
		}, fmt.Errorf("shield api error while listing webhooks"))
		return nil
	}

	registered := map[string]RemoteWebhook{}
	for _, hook := range decodeWebhookList(res.Body) {
		registered[hook.Topic] = hook
	}

	for _, topic := range expectedWebhookTopics {
		want := webhookURL(base, topic)
		hook, exists := registered[topic]
		switch {
		case !exists:
			_, terr = r.Client.CreateWebhook(ctx, RemoteWebhook{Topic: topic, URL: want})
		case hook.URL != want:
			hook.URL = want
			_, terr = r.Client.UpdateWebhook(ctx, hook)
		default:
			continue
		}
		if terr != nil {
			config.LogError(r.Logger, "shieldsync", "Upsert", "webhooks", map[string]interface{}{
				"topic":    topic,
				"endpoint": "webhooks",
			}, terr)
		}
	}
	return nil
}

func decodeWebhookList(body []byte) []RemoteWebhook {
	var hooks []RemoteWebhook
	if err := json.Unmarshal(body, &hooks); err == nil {
		return hooks
	}
	var wrapped struct {
		Data []RemoteWebhook `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		return wrapped.Data
	}
	return nil
}
