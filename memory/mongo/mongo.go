// Package mongo provides a core.MemoryStore backed by a MongoDB collection.
// A snapshot is one document per namespace holding every agent's entries.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hupe1980/roundtable/core"
)

// Options configures the MongoDB store.
type Options struct {
	Database   string
	Collection string
	// Namespace is the _id of the snapshot document.
	Namespace string
}

type agentDoc struct {
	ID      string   `bson:"id"`
	Entries []string `bson:"entries"`
}

type snapshotDoc struct {
	ID        string     `bson:"_id"`
	Agents    []agentDoc `bson:"agents"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

// Store persists snapshots in MongoDB.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	namespace  string
}

// New connects to uri and verifies the connection.
func New(ctx context.Context, uri string, optFns ...func(o *Options)) (*Store, error) {
	clientOpts := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return NewFromClient(client, optFns...), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *mongo.Client, optFns ...func(o *Options)) *Store {
	o := Options{
		Database:   "roundtable",
		Collection: "agent_memory",
		Namespace:  "default",
	}
	for _, fn := range optFns {
		fn(&o)
	}
	return &Store{
		client:     client,
		collection: client.Database(o.Database).Collection(o.Collection),
		namespace:  o.Namespace,
	}
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Load implements core.MemoryStore.
func (s *Store) Load(ctx context.Context) (core.Snapshot, error) {
	var doc snapshotDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": s.namespace}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load memory: %w", err)
	}

	snap := make(core.Snapshot, len(doc.Agents))
	for _, a := range doc.Agents {
		entries := a.Entries
		if entries == nil {
			entries = []string{}
		}
		snap[core.AgentID(a.ID)] = entries
	}
	return snap, nil
}

// Save implements core.MemoryStore by replacing the namespace document.
func (s *Store) Save(ctx context.Context, snapshot core.Snapshot) error {
	doc := snapshotDoc{
		ID:        s.namespace,
		Agents:    make([]agentDoc, 0, len(snapshot)),
		UpdatedAt: time.Now().UTC(),
	}
	for id, entries := range snapshot {
		if entries == nil {
			entries = []string{}
		}
		doc.Agents = append(doc.Agents, agentDoc{ID: string(id), Entries: entries})
	}

	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": s.namespace}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}
