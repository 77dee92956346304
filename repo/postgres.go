package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventdesk/clock"
	"eventdesk/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type txKey struct{}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

func NewPostgresStore(pool *pgxpool.Pool, clk clock.Clock) *PostgresStore {
	return &PostgresStore{pool: pool, clock: clk}
}

const eventColumns = `id::text, account_id, creator_id, title, description, category, online, private,
	location, start_date_time, end_date_time, thumbnail, paid, status, version, created_at, updated_at`

const tierColumns = `id::text, event_id::text, name, price::float8, quantity, description,
	sale_start, sale_end, max_per_order, sold, created_at, updated_at`

func (s *PostgresStore) GetEvent(ctx context.Context, eventID string) (models.Event, error) {
	row := s.q(ctx).QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, eventID)
	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Event{}, ErrEventNotFound
	}
	if isInvalidUUID(err) {
		return models.Event{}, ErrInvalidID
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("select event: %w", err)
	}
	ev.Tickets, err = s.ListTiers(ctx, eventID)
	if err != nil {
		return models.Event{}, err
	}
	return ev, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, accountID string, skip, limit int64) ([]models.Event, int64, error) {
	var total int64
	if err := s.q(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM events WHERE account_id = $1`, accountID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	rows, err := s.q(ctx).Query(ctx, `
SELECT `+eventColumns+`
FROM events
WHERE account_id = $1
ORDER BY created_at DESC, id
OFFSET $2 LIMIT $3`, accountID, skip, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	return events, total, nil
}

func (s *PostgresStore) CreateEvent(ctx context.Context, event models.Event) (models.Event, error) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	now := s.clock.Now()
	event.CreatedAt = now
	event.UpdatedAt = now
	event.Version = 1
	event.Tickets = nil

	_, err := s.q(ctx).Exec(ctx, `
INSERT INTO events (id, account_id, creator_id, title, description, category, online, private,
	location, start_date_time, end_date_time, thumbnail, paid, status, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		event.EventID, event.AccountID, event.CreatorID, event.Title, event.Description, event.Category,
		event.Online, event.Private, event.Location, event.StartDateTime, event.EndDateTime,
		event.Thumbnail, event.Paid, event.Status, event.Version, event.CreatedAt, event.UpdatedAt,
	)
	switch {
	case isUniqueViolation(err):
		return models.Event{}, ErrEventConflict
	case isInvalidUUID(err):
		return models.Event{}, ErrInvalidID
	case err != nil:
		return models.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

func (s *PostgresStore) UpdateEvent(ctx context.Context, event models.Event, expectedVersion int64) (models.Event, error) {
	row := s.q(ctx).QueryRow(ctx, `
UPDATE events SET
	title = $3, description = $4, category = $5, online = $6, private = $7, location = $8,
	start_date_time = $9, end_date_time = $10, thumbnail = $11, paid = $12, status = $13,
	version = version + 1, updated_at = $14
WHERE id = $1 AND version = $2
RETURNING `+eventColumns,
		event.EventID, expectedVersion, event.Title, event.Description, event.Category, event.Online,
		event.Private, event.Location, event.StartDateTime, event.EndDateTime, event.Thumbnail,
		event.Paid, event.Status, s.clock.Now(),
	)
	updated, err := scanEvent(row)
	if isInvalidUUID(err) {
		return models.Event{}, ErrInvalidID
	}
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := s.q(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, event.EventID).Scan(&exists); err != nil {
			return models.Event{}, fmt.Errorf("check event: %w", err)
		}
		if !exists {
			return models.Event{}, ErrEventNotFound
		}
		return models.Event{}, ErrEventConflict
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("update event: %w", err)
	}
	return updated, nil
}

// DeleteEvent relies on the tier cascade; a sale row restricts it.
func (s *PostgresStore) DeleteEvent(ctx context.Context, eventID string) error {
	tag, err := s.q(ctx).Exec(ctx, `DELETE FROM events WHERE id = $1`, eventID)
	switch {
	case isForeignKeyViolation(err):
		return ErrTierHasSales
	case isInvalidUUID(err):
		return ErrInvalidID
	case err != nil:
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (s *PostgresStore) ListTierIDs(ctx context.Context, eventID string) ([]string, error) {
	rows, err := s.q(ctx).Query(ctx, `SELECT id::text FROM ticket_tiers WHERE event_id = $1 ORDER BY created_at, id`, eventID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, ErrInvalidID
		}
		return nil, fmt.Errorf("list tier ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		if isInvalidUUID(err) {
			return nil, ErrInvalidID
		}
		return nil, fmt.Errorf("list tier ids: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (s *PostgresStore) ListTiers(ctx context.Context, eventID string) ([]models.TicketTier, error) {
	rows, err := s.q(ctx).Query(ctx, `SELECT `+tierColumns+` FROM ticket_tiers WHERE event_id = $1 ORDER BY created_at, id`, eventID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, ErrInvalidID
		}
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	defer rows.Close()

	tiers := []models.TicketTier{}
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		tiers = append(tiers, t)
	}
	if err := rows.Err(); err != nil {
		if isInvalidUUID(err) {
			return nil, ErrInvalidID
		}
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	return tiers, nil
}

// DeleteTiers is one statement, so the ON DELETE RESTRICT on ticket_sales
// makes it all or none.
func (s *PostgresStore) DeleteTiers(ctx context.Context, eventID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.q(ctx).Exec(ctx,
		`DELETE FROM ticket_tiers WHERE event_id = $1 AND id::text = ANY($2::text[])`, eventID, ids)
	switch {
	case isForeignKeyViolation(err):
		return ErrTierHasSales
	case isInvalidUUID(err):
		return ErrInvalidID
	case err != nil:
		return fmt.Errorf("delete tiers: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertTiers(ctx context.Context, eventID string, tiers []models.TicketTier) ([]models.TicketTier, error) {
	if len(tiers) == 0 {
		return []models.TicketTier{}, nil
	}

	n := len(tiers)
	var (
		ids          = make([]string, n)
		names        = make([]string, n)
		prices       = make([]float64, n)
		quantities   = make([]int64, n)
		descriptions = make([]string, n)
		saleStarts   = make([]time.Time, n)
		saleEnds     = make([]time.Time, n)
		maxPerOrder  = make([]int64, n)
	)
	for i, t := range tiers {
		if t.TicketID == "" {
			t.TicketID = uuid.NewString()
		}
		ids[i] = t.TicketID
		names[i] = t.Name
		prices[i] = t.Price
		quantities[i] = int64(t.Quantity)
		descriptions[i] = t.Description
		saleStarts[i] = t.SaleStart
		saleEnds[i] = t.SaleEnd
		maxPerOrder[i] = int64(t.MaxPerOrder)
	}

	rows, err := s.q(ctx).Query(ctx, `
INSERT INTO ticket_tiers (id, event_id, name, price, quantity, description, sale_start, sale_end,
	max_per_order, created_at, updated_at)
SELECT u.id::uuid, $1::uuid, u.name, u.price::numeric, u.quantity::int, u.description,
	u.sale_start, u.sale_end, u.max_per_order::int, $2, $2
FROM unnest($3::text[], $4::text[], $5::float8[], $6::int8[], $7::text[], $8::timestamptz[],
	$9::timestamptz[], $10::int8[])
	AS u(id, name, price, quantity, description, sale_start, sale_end, max_per_order)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	price = EXCLUDED.price,
	quantity = EXCLUDED.quantity,
	description = EXCLUDED.description,
	sale_start = EXCLUDED.sale_start,
	sale_end = EXCLUDED.sale_end,
	max_per_order = EXCLUDED.max_per_order,
	updated_at = EXCLUDED.updated_at
WHERE ticket_tiers.event_id = EXCLUDED.event_id
RETURNING `+tierColumns,
		eventID, s.clock.Now(), ids, names, prices, quantities, descriptions, saleStarts, saleEnds, maxPerOrder,
	)
	if err != nil {
		return nil, upsertError(err)
	}
	defer rows.Close()

	byID := make(map[string]models.TicketTier, n)
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		byID[t.TicketID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, upsertError(err)
	}

	out := make([]models.TicketTier, 0, n)
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			// The conflict clause skipped it: the id belongs to another event.
			return nil, ErrTierNotInEvent
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *PostgresStore) RecordSale(ctx context.Context, eventID, tierID, buyerID string, quantity int) (models.TicketTier, error) {
	var tier models.TicketTier
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		row := s.q(ctx).QueryRow(ctx, `
UPDATE ticket_tiers SET sold = sold + $3, updated_at = $4
WHERE id = $1 AND event_id = $2 AND sold + $3 <= quantity
RETURNING `+tierColumns, tierID, eventID, quantity, s.clock.Now())
		t, err := scanTier(row)
		if isInvalidUUID(err) {
			return ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			var owner string
			err := s.q(ctx).QueryRow(ctx, `SELECT event_id::text FROM ticket_tiers WHERE id = $1`, tierID).Scan(&owner)
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				return ErrTierNotFound
			case err != nil:
				return fmt.Errorf("check tier: %w", err)
			case owner != eventID:
				return ErrTierNotInEvent
			}
			return ErrSoldOut
		}
		if err != nil {
			return fmt.Errorf("record sale: %w", err)
		}

		if _, err := s.q(ctx).Exec(ctx,
			`INSERT INTO ticket_sales (id, tier_id, buyer_id, quantity, created_at) VALUES ($1, $2, $3, $4, $5)`,
			uuid.NewString(), tierID, buyerID, quantity, s.clock.Now(),
		); err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		tier = t
		return nil
	})
	return tier, err
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	// Rollback is a no-op once Commit went through; it also covers fn panicking.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

func scanEvent(row pgx.Row) (models.Event, error) {
	var ev models.Event
	err := row.Scan(
		&ev.EventID, &ev.AccountID, &ev.CreatorID, &ev.Title, &ev.Description, &ev.Category,
		&ev.Online, &ev.Private, &ev.Location, &ev.StartDateTime, &ev.EndDateTime, &ev.Thumbnail,
		&ev.Paid, &ev.Status, &ev.Version, &ev.CreatedAt, &ev.UpdatedAt,
	)
	return ev, err
}

func scanTier(row pgx.Row) (models.TicketTier, error) {
	var t models.TicketTier
	err := row.Scan(
		&t.TicketID, &t.EventID, &t.Name, &t.Price, &t.Quantity, &t.Description,
		&t.SaleStart, &t.SaleEnd, &t.MaxPerOrder, &t.Sold, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func upsertError(err error) error {
	switch {
	case isInvalidUUID(err):
		return ErrInvalidID
	case isForeignKeyViolation(err):
		return ErrEventNotFound
	}
	return fmt.Errorf("upsert tiers: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
