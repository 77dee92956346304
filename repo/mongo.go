package repo

import (
	"context"
	"errors"
	"fmt"

	"eventdesk/clock"
	"eventdesk/db"
	"eventdesk/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps events in "events", tiers in "ticks" and individual sales
// in "purticks", keyed by the string ids the rest of the app uses.
type MongoStore struct {
	client       *mongo.Client
	events       *mongo.Collection
	tiers        *mongo.Collection
	sales        *mongo.Collection
	clock        clock.Clock
	transactions bool
}

// NewMongoStore wraps an open connection. transactions requires a replica
// set; without it RunInTx runs fn directly.
func NewMongoStore(conn *db.Mongo, clk clock.Clock, transactions bool) *MongoStore {
	return &MongoStore{
		client:       conn.Client,
		events:       conn.Events,
		tiers:        conn.Tickets,
		sales:        conn.PurchasedTickets,
		clock:        clk,
		transactions: transactions,
	}
}

func (s *MongoStore) GetEvent(ctx context.Context, eventID string) (models.Event, error) {
	var ev models.Event
	err := s.events.FindOne(ctx, bson.M{"eventid": eventID}).Decode(&ev)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Event{}, ErrEventNotFound
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("find event: %w", err)
	}
	ev.Tickets, err = s.ListTiers(ctx, eventID)
	if err != nil {
		return models.Event{}, err
	}
	return ev, nil
}

func (s *MongoStore) ListEvents(ctx context.Context, accountID string, skip, limit int64) ([]models.Event, int64, error) {
	filter := bson.M{"accountid": accountID}
	total, err := s.events.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	opts := options.Find().SetSkip(skip).SetLimit(limit).SetSort(bson.D{{Key: "created_at", Value: -1}})
	events, err := db.FindAndDecode[models.Event](ctx, s.events, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	return events, total, nil
}

func (s *MongoStore) CreateEvent(ctx context.Context, event models.Event) (models.Event, error) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	now := s.clock.Now()
	event.CreatedAt = now
	event.UpdatedAt = now
	event.Version = 1
	event.Tickets = nil

	if _, err := s.events.InsertOne(ctx, event); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Event{}, ErrEventConflict
		}
		return models.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

func (s *MongoStore) UpdateEvent(ctx context.Context, event models.Event, expectedVersion int64) (models.Event, error) {
	set := bson.M{
		"title":           event.Title,
		"description":     event.Description,
		"category":        event.Category,
		"online":          event.Online,
		"private":         event.Private,
		"location":        event.Location,
		"start_date_time": event.StartDateTime,
		"end_date_time":   event.EndDateTime,
		"thumbnail":       event.Thumbnail,
		"paid":            event.Paid,
		"status":          event.Status,
		"updated_at":      s.clock.Now(),
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Event
	err := s.events.FindOneAndUpdate(ctx,
		bson.M{"eventid": event.EventID, "version": expectedVersion},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
		opts,
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, cerr := s.events.CountDocuments(ctx, bson.M{"eventid": event.EventID})
		if cerr != nil {
			return models.Event{}, fmt.Errorf("check event: %w", cerr)
		}
		if n == 0 {
			return models.Event{}, ErrEventNotFound
		}
		return models.Event{}, ErrEventConflict
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("update event: %w", err)
	}
	return updated, nil
}

func (s *MongoStore) DeleteEvent(ctx context.Context, eventID string) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		ids, err := s.ListTierIDs(ctx, eventID)
		if err != nil {
			return err
		}
		if err := s.DeleteTiers(ctx, eventID, ids); err != nil {
			return err
		}
		res, err := s.events.DeleteOne(ctx, bson.M{"eventid": eventID})
		if err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		if res.DeletedCount == 0 {
			return ErrEventNotFound
		}
		return nil
	})
}

func (s *MongoStore) ListTierIDs(ctx context.Context, eventID string) ([]string, error) {
	tiers, err := s.ListTiers(ctx, eventID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(tiers))
	for _, t := range tiers {
		ids = append(ids, t.TicketID)
	}
	return ids, nil
}

func (s *MongoStore) ListTiers(ctx context.Context, eventID string) ([]models.TicketTier, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	tiers, err := db.FindAndDecode[models.TicketTier](ctx, s.tiers, bson.M{"eventid": eventID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	if tiers == nil {
		tiers = []models.TicketTier{}
	}
	return tiers, nil
}

// DeleteTiers has no foreign keys to lean on, so it checks the sold counter
// and the purchase log before removing anything.
func (s *MongoStore) DeleteTiers(ctx context.Context, eventID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	scope := bson.M{"eventid": eventID, "ticketid": bson.M{"$in": ids}}

	sold, err := s.tiers.CountDocuments(ctx, bson.M{"eventid": eventID, "ticketid": bson.M{"$in": ids}, "sold": bson.M{"$gt": 0}})
	if err != nil {
		return fmt.Errorf("check tier sales: %w", err)
	}
	if sold > 0 {
		return ErrTierHasSales
	}
	purchases, err := s.sales.CountDocuments(ctx, scope)
	if err != nil {
		return fmt.Errorf("check purchases: %w", err)
	}
	if purchases > 0 {
		return ErrTierHasSales
	}

	if _, err := s.tiers.DeleteMany(ctx, scope); err != nil {
		return fmt.Errorf("delete tiers: %w", err)
	}
	return nil
}

func (s *MongoStore) UpsertTiers(ctx context.Context, eventID string, tiers []models.TicketTier) ([]models.TicketTier, error) {
	if len(tiers) == 0 {
		return []models.TicketTier{}, nil
	}
	now := s.clock.Now()
	out := make([]models.TicketTier, 0, len(tiers))
	writes := make([]mongo.WriteModel, 0, len(tiers))

	for _, t := range tiers {
		t.EventID = eventID
		t.UpdatedAt = now
		if t.TicketID == "" {
			t.TicketID = uuid.NewString()
			t.CreatedAt = now
			t.Sold = 0
			writes = append(writes, mongo.NewInsertOneModel().SetDocument(t))
			out = append(out, t)
			continue
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"eventid": eventID, "ticketid": t.TicketID}).
			SetUpdate(bson.M{
				"$set": bson.M{
					"name":          t.Name,
					"price":         t.Price,
					"quantity":      t.Quantity,
					"description":   t.Description,
					"sale_start":    t.SaleStart,
					"sale_end":      t.SaleEnd,
					"max_per_order": t.MaxPerOrder,
					"updated_at":    now,
				},
				"$setOnInsert": bson.M{"created_at": now, "sold": 0},
			}).
			SetUpsert(true))
		out = append(out, t)
	}

	if _, err := s.tiers.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true)); err != nil {
		return nil, fmt.Errorf("upsert tiers: %w", err)
	}

	// Re-read so sold counts and creation times come from the stored rows.
	stored, err := s.ListTiers(ctx, eventID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.TicketTier, len(stored))
	for _, t := range stored {
		byID[t.TicketID] = t
	}
	for i, t := range out {
		if row, ok := byID[t.TicketID]; ok {
			out[i] = row
		}
	}
	return out, nil
}

func (s *MongoStore) RecordSale(ctx context.Context, eventID, tierID, buyerID string, quantity int) (models.TicketTier, error) {
	var tier models.TicketTier
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		filter := bson.M{
			"eventid":  eventID,
			"ticketid": tierID,
			"$expr":    bson.M{"$lte": bson.A{bson.M{"$add": bson.A{"$sold", quantity}}, "$quantity"}},
		}
		update := bson.M{"$inc": bson.M{"sold": quantity}, "$set": bson.M{"updated_at": s.clock.Now()}}
		err := s.tiers.FindOneAndUpdate(ctx, filter, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&tier)
		if errors.Is(err, mongo.ErrNoDocuments) {
			n, cerr := s.tiers.CountDocuments(ctx, bson.M{"eventid": eventID, "ticketid": tierID})
			if cerr != nil {
				return fmt.Errorf("check tier: %w", cerr)
			}
			if n == 0 {
				return ErrTierNotFound
			}
			return ErrSoldOut
		}
		if err != nil {
			return fmt.Errorf("record sale: %w", err)
		}
		_, err = s.sales.InsertOne(ctx, bson.M{
			"eventid":       eventID,
			"ticketid":      tierID,
			"userid":        buyerID,
			"quantity":      quantity,
			"uniquecode":    uuid.NewString(),
			"purchase_date": s.clock.Now(),
		})
		if err != nil {
			return fmt.Errorf("insert purchase: %w", err)
		}
		return nil
	})
	return tier, err
}

func (s *MongoStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	return err
}
