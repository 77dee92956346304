package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo holds the client and the collections the event workflow touches.
type Mongo struct {
	Client           *mongo.Client
	Events           *mongo.Collection
	Tickets          *mongo.Collection
	PurchasedTickets *mongo.Collection
}

// Connect opens the client, pings it and resolves the collections.
func Connect(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	d := client.Database(database)
	return &Mongo{
		Client:           client,
		Events:           d.Collection("events"),
		Tickets:          d.Collection("ticks"),
		PurchasedTickets: d.Collection("purticks"),
	}, nil
}

// EnsureIndexes creates the unique id indexes and the lookup indexes.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	if _, err := m.Events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "eventid", Value: 1}}, Options: options.Index().SetUnique(true).SetName("unique_eventid")},
		{Keys: bson.D{{Key: "accountid", Value: 1}, {Key: "created_at", Value: -1}}, Options: options.Index().SetName("account_created")},
	}); err != nil {
		return fmt.Errorf("event indexes: %w", err)
	}
	if _, err := m.Tickets.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "ticketid", Value: 1}}, Options: options.Index().SetUnique(true).SetName("unique_ticketid")},
		{Keys: bson.D{{Key: "eventid", Value: 1}}, Options: options.Index().SetName("eventid")},
	}); err != nil {
		return fmt.Errorf("ticket indexes: %w", err)
	}
	if _, err := m.PurchasedTickets.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "ticketid", Value: 1}},
		Options: options.Index().SetName("ticketid"),
	}); err != nil {
		return fmt.Errorf("purchase indexes: %w", err)
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

// FindAndDecode runs a find and decodes every document into T.
func FindAndDecode[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
