package mongodb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/omnipdfs/relay/internal/audit"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const collectionName = "audit_events"

type Event struct {
	Id         bson.ObjectID `bson:"_id,omitempty"`
	EventId    string        `bson:"eventId"`
	Kind       string        `bson:"kind"`
	DocumentId string        `bson:"documentId"`
	Actor      audit.Actor   `bson:"actor"`
	Details    string        `bson:"details,omitempty"`
	CreateTime time.Time     `bson:"createTime"`
}

type Recorder struct {
	collection *mongo.Collection
}

func NewRecorder(client *mongo.Client, databaseName string) *Recorder {
	database := client.Database(databaseName)
	collection := database.Collection(collectionName)

	return &Recorder{
		collection,
	}
}

func (r *Recorder) Setup(ctx context.Context) error {
	documentIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "documentId", Value: 1},
			{Key: "createTime", Value: -1},
		},
	}

	eventIdIndexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "eventId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}

	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{documentIndexModel, eventIdIndexModel})

	return err
}

func (r *Recorder) Record(ctx context.Context, event audit.Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return err
	}

	_, err = r.collection.InsertOne(ctx, Event{
		EventId:    event.Id,
		Kind:       event.Kind,
		DocumentId: event.DocumentId,
		Actor:      event.Actor,
		Details:    string(details),
		CreateTime: event.CreateTime,
	})

	return err
}

// List returns the most recent events of a document, newest first.
func (r *Recorder) List(ctx context.Context, documentId string, limit int64) ([]audit.Event, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createTime", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{"documentId": documentId}, opts)
	if err != nil {
		return nil, err
	}

	var mongoEvents []Event
	err = cursor.All(ctx, &mongoEvents)
	if err != nil {
		return nil, err
	}

	events := make([]audit.Event, len(mongoEvents))
	for i, e := range mongoEvents {
		var details any
		if e.Details != "" {
			err := json.Unmarshal([]byte(e.Details), &details)
			if err != nil {
				return nil, err
			}
		}

		events[i] = audit.Event{
			Id:         e.EventId,
			Kind:       e.Kind,
			DocumentId: e.DocumentId,
			Actor:      e.Actor,
			Details:    details,
			CreateTime: e.CreateTime,
		}
	}

	return events, nil
}
