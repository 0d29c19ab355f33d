package push

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"teamchat/internal/apperr"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const subscriptionCols = `id, user_id, endpoint, p256dh, auth, platform, last_sent_at, error_count, last_status, updated_at`

func scanSubscription(row interface{ Scan(...any) error }) (*Subscription, error) {
	var s Subscription
	var lastSent sql.NullTime
	var lastStatus sql.NullInt64
	err := row.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth,
		&s.Platform, &lastSent, &s.ErrorCount, &lastStatus, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastSent.Valid {
		s.LastSentAt = &lastSent.Time
	}
	if lastStatus.Valid {
		status := int(lastStatus.Int64)
		s.LastStatus = &status
	}
	return &s, nil
}

// Upsert registers a device. Re-registering an endpoint refreshes its keys
// and ownership; a new endpoint beyond the per-user cap evicts the device
// that was updated longest ago.
func (r *Repository) Upsert(ctx context.Context, sub *Subscription, maxPerUser int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh, auth, platform, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
         ON CONFLICT (endpoint) DO UPDATE SET
             user_id = EXCLUDED.user_id,
             p256dh = EXCLUDED.p256dh,
             auth = EXCLUDED.auth,
             platform = EXCLUDED.platform,
             error_count = 0,
             updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth, sub.Platform, sub.UpdatedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM push_subscriptions
         WHERE user_id = $1 AND id NOT IN (
             SELECT id FROM push_subscriptions
             WHERE user_id = $1
             ORDER BY updated_at DESC
             LIMIT $2
         )`,
		sub.UserID, maxPerUser)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) DeleteByEndpoint(ctx context.Context, userID uuid.UUID, endpoint string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`,
		userID, endpoint)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("subscription")
	}
	return nil
}

func (r *Repository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE id = $1`, id)
	return err
}

func (r *Repository) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = $1`, userID)
	return err
}

func (r *Repository) ForUser(ctx context.Context, userID uuid.UUID) ([]*Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriptionCols+` FROM push_subscriptions WHERE user_id = $1 ORDER BY updated_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// RecordSuccess stamps a delivery and clears accumulated errors.
func (r *Repository) RecordSuccess(ctx context.Context, id uuid.UUID, status int, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE push_subscriptions SET last_sent_at = $2, last_status = $3, error_count = 0 WHERE id = $1`,
		id, at, status)
	return err
}

// RecordFailure bumps the error count for a transient delivery failure.
func (r *Repository) RecordFailure(ctx context.Context, id uuid.UUID, status int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE push_subscriptions SET last_status = $2, error_count = error_count + 1 WHERE id = $1`,
		id, status)
	return err
}
