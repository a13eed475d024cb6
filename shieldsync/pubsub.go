package shieldsync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/veltashop/shieldsync_backend/config"
	"github.com/veltashop/shieldsync_backend/utils"
)

// Worker passes can be triggered by Cloud Scheduler publishing a job name
// to a topic whose subscription pushes back into this service. The ticker
// in cmd remains the fallback for environments without Pub/Sub.

type WorkerRunPayload struct {
	Job string `json:"job"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageId string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func workerTopicName() string {
	name := strings.TrimSpace(os.Getenv("SHIELD_SYNC_TOPIC"))
	if name == "" {
		name = "shieldsync-workers"
	}
	return name
}

func PublishWorkerRun(ctx context.Context, job string) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(workerTopicName())
	if config.EnvBoolDefault("SHIELD_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, workerTopicName())
		if err != nil {
			return err
		}
	}

	data, _ := json.Marshal(WorkerRunPayload{Job: job})
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// WorkerPushHandler accepts Pub/Sub push deliveries. It always replies 204:
// a malformed envelope is dropped rather than redelivered forever, and a
// failed pass is retried by the next scheduled tick anyway.
func WorkerPushHandler(workers *Workers) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.EnvBoolDefault("ENABLE_SHIELD_SYNC_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload WorkerRunPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.Job == "" {
			c.Status(204)
			return
		}

		ctx := utils.SetTriggerSourceInContext(c.Request.Context(), "pubsub")
		_ = workers.Run(ctx, payload.Job)
		c.Status(204)
	}
}
