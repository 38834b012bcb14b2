package jobqueue

import (
	"context"
	"errors"
	"strings"
)

// Notifier publishes named events as background jobs. The event name becomes
// the job type, so a handler registered for that type consumes it.
type Notifier struct {
	queue *Queue
}

func NewNotifier(queue *Queue) *Notifier {
	return &Notifier{queue: queue}
}

// Send enqueues one event with its data as the job payload
func (n *Notifier) Send(ctx context.Context, name string, data map[string]interface{}) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("event name is required")
	}
	payload := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["event"] = name

	_, err := n.queue.EnqueueJob(ctx, JobType(name), payload)
	return err
}
