package mongodb

import (
	"context"
	"fmt"
	"time"

	scheduler "github.com/DEEJ4Y/hourly"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config holds the configuration for the MongoDB task source.
type Config struct {
	// Collection is the MongoDB collection where task definitions are stored.
	// Required.
	Collection *mongo.Collection

	// Field names for task properties (optional, have defaults)
	NameField         string // default: "name"
	StartFromField    string // default: "startFrom"
	RepeatUntilField  string // default: "repeatUntil"
	EarliestDoneField string // default: "earliestDone"
	LatestDoneField   string // default: "latestDone"

	// Condition is an optional additional filter to apply when querying tasks.
	// This allows you to schedule only a subset of tasks in the collection.
	// Example: bson.M{"type": "report"} to only load report tasks.
	Condition bson.M
}

// Source implements scheduler.TaskSource for MongoDB.
type Source struct {
	collection        *mongo.Collection
	nameField         string
	startFromField    string
	repeatUntilField  string
	earliestDoneField string
	latestDoneField   string
	condition         bson.M
}

// NewSource creates a new MongoDB task source with the given configuration.
func NewSource(config Config) (*Source, error) {
	if config.Collection == nil {
		return nil, fmt.Errorf("collection is required")
	}

	// Set defaults
	if config.NameField == "" {
		config.NameField = "name"
	}
	if config.StartFromField == "" {
		config.StartFromField = "startFrom"
	}
	if config.RepeatUntilField == "" {
		config.RepeatUntilField = "repeatUntil"
	}
	if config.EarliestDoneField == "" {
		config.EarliestDoneField = "earliestDone"
	}
	if config.LatestDoneField == "" {
		config.LatestDoneField = "latestDone"
	}

	return &Source{
		collection:        config.Collection,
		nameField:         config.NameField,
		startFromField:    config.StartFromField,
		repeatUntilField:  config.RepeatUntilField,
		earliestDoneField: config.EarliestDoneField,
		latestDoneField:   config.LatestDoneField,
		condition:         config.Condition,
	}, nil
}

// Load reads every task definition, ordered by _id so registration order
// matches insertion order.
func (s *Source) Load(ctx context.Context) ([]*scheduler.Task, error) {
	filter := s.filter()
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find failed: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []*scheduler.Task
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}

		task, err := s.bsonToTask(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert document to task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor failed: %w", err)
	}

	return tasks, nil
}

// filter builds the query filter: documents with a start time, narrowed by
// the custom condition if provided.
func (s *Source) filter() bson.M {
	conditions := []bson.M{
		{s.startFromField: bson.M{"$exists": true, "$ne": nil}},
	}
	if s.condition != nil {
		conditions = append(conditions, s.condition)
	}
	return bson.M{"$and": conditions}
}

// bsonToTask converts a BSON document to a Task.
func (s *Source) bsonToTask(doc bson.M) (*scheduler.Task, error) {
	task := &scheduler.Task{
		Data: make(map[string]interface{}),
	}

	// Extract _id
	if id, ok := doc["_id"]; ok {
		task.ID = id
	}

	// Extract name
	if name, ok := doc[s.nameField].(string); ok {
		task.Name = name
	}

	startFrom, err := timeField(doc, s.startFromField)
	if err != nil {
		return nil, err
	}
	if startFrom == nil {
		return nil, fmt.Errorf("document %v has no %s", task.ID, s.startFromField)
	}
	task.StartFrom = *startFrom

	if task.RepeatUntil, err = timeField(doc, s.repeatUntilField); err != nil {
		return nil, err
	}
	if task.EarliestDone, err = timeField(doc, s.earliestDoneField); err != nil {
		return nil, err
	}
	if task.LatestDone, err = timeField(doc, s.latestDoneField); err != nil {
		return nil, err
	}

	// Copy all fields to Data
	for key, value := range doc {
		task.Data[key] = value
	}

	return task, nil
}

// timeField extracts an optional date field in UTC.
func timeField(doc bson.M, field string) (*time.Time, error) {
	value, ok := doc[field]
	if !ok || value == nil {
		return nil, nil
	}

	switch t := value.(type) {
	case primitive.DateTime:
		timeVal := t.Time().UTC()
		return &timeVal, nil
	case time.Time:
		timeVal := t.UTC()
		return &timeVal, nil
	default:
		return nil, fmt.Errorf("field %s: expected a date, got %T", field, value)
	}
}
