package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/omnipdfs/relay/internal/audit"
	"github.com/redis/go-redis/v9"
)

// Recorder appends audit events to a capped Redis stream.
type Recorder struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRecorder(client *redis.Client, stream string, maxLen int64) *Recorder {
	return &Recorder{
		client,
		stream,
		maxLen,
	}
}

func (r *Recorder) Record(ctx context.Context, event audit.Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return err
	}

	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]any{
			"eventId":    event.Id,
			"kind":       event.Kind,
			"documentId": event.DocumentId,
			"userId":     event.Actor.UserId,
			"userName":   event.Actor.UserName,
			"details":    string(details),
			"createTime": event.CreateTime.Format(time.RFC3339Nano),
		},
	}).Err()
}

// Range reads back up to count events from the start of the stream.
func (r *Recorder) Range(ctx context.Context, count int64) ([]audit.Event, error) {
	entries, err := r.client.XRangeN(ctx, r.stream, "-", "+", count).Result()
	if err != nil {
		return nil, err
	}

	events := make([]audit.Event, 0, len(entries))
	for _, entry := range entries {
		event, err := decodeEvent(entry.Values)
		if err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	return events, nil
}

func decodeEvent(values map[string]any) (audit.Event, error) {
	field := func(key string) string {
		value, _ := values[key].(string)
		return value
	}

	createTime, err := time.Parse(time.RFC3339Nano, field("createTime"))
	if err != nil {
		return audit.Event{}, err
	}

	var details any
	if raw := field("details"); raw != "" {
		err := json.Unmarshal([]byte(raw), &details)
		if err != nil {
			return audit.Event{}, err
		}
	}

	return audit.Event{
		Id:         field("eventId"),
		Kind:       field("kind"),
		DocumentId: field("documentId"),
		Actor: audit.Actor{
			UserId:   field("userId"),
			UserName: field("userName"),
		},
		Details:    details,
		CreateTime: createTime,
	}, nil
}
