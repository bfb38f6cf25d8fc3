// README: Order store backed by PostgreSQL; conditional updates implement the write-time guards.
package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"deliverd/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	address, err := json.Marshal(o.Address)
	if err != nil {
		return fmt.Errorf("marshal address: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, guest, rider_id, status, payment_status, status_version,
			items, delivery_address, total_amount, currency, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $12
		)`,
		string(o.ID),
		string(o.CustomerID),
		o.Guest,
		toStringPtr(o.RiderID),
		string(o.Status),
		string(o.PaymentStatus),
		o.StatusVersion,
		items,
		address,
		o.Total.Amount,
		o.Total.Currency,
		o.CreatedAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, customer_id, guest, rider_id, status, payment_status, status_version,
		       items, delivery_address, total_amount, currency, created_at, updated_at
		FROM orders
		WHERE id = $1`, string(id),
	)

	var o Order
	var riderID sql.NullString
	var items, address []byte

	err := row.Scan(
		&o.ID, &o.CustomerID, &o.Guest, &riderID, &o.Status, &o.PaymentStatus, &o.StatusVersion,
		&items, &address, &o.Total.Amount, &o.Total.Currency, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if riderID.Valid {
		r := types.ID(riderID.String)
		o.RiderID = &r
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	if err := json.Unmarshal(address, &o.Address); err != nil {
		return nil, fmt.Errorf("unmarshal address: %w", err)
	}
	return &o, nil
}

// ApplyTransition commits a status change only if the order is still at the
// expected (status, version) pair. Zero rows affected means a writer lost the
// race or the transition was already applied.
func (s *PGStore) ApplyTransition(ctx context.Context, id types.ID, from, to Status, version int, pay PaymentStatus) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    payment_status = $2,
		    status_version = status_version + 1,
		    updated_at = NOW()
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(to),
		string(pay),
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AssignRider is the one write where two actors genuinely race: the update is
// conditioned on rider_id still being NULL so exactly one accept wins, and on
// the rider having no other active delivery so one rider cannot win two
// orders concurrently.
func (s *PGStore) AssignRider(ctx context.Context, id types.ID, riderID types.ID, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET rider_id = $1,
		    status = 'out_for_delivery',
		    status_version = status_version + 1,
		    updated_at = NOW()
		WHERE id = $2 AND status = 'ready' AND rider_id IS NULL AND status_version = $3
		  AND NOT EXISTS (
		      SELECT 1 FROM orders other
		      WHERE other.rider_id = $1 AND other.status = 'out_for_delivery'
		  )`,
		string(riderID),
		string(id),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) HasActiveAssignment(ctx context.Context, riderID types.ID) (bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM orders
			WHERE rider_id = $1
			  AND status = 'out_for_delivery'
		)`, string(riderID),
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PGStore) AppendEvent(ctx context.Context, e *StatusEvent) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_status_events (
			order_id, event, from_status, to_status, actor_role, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.OrderID),
		string(e.Event),
		string(e.From),
		string(e.To),
		e.ActorRole,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
