package preview

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"teamchat/internal/apperr"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const entryCols = `url_hash, url, status, COALESCE(title, ''), COALESCE(description, ''),
	COALESCE(site_name, ''), COALESCE(favicon_url, ''), COALESCE(image_url, ''),
	COALESCE(image_full_key, ''), COALESCE(image_thumb_key, ''),
	COALESCE(video_id, ''), COALESCE(video_provider, ''), COALESCE(error_message, ''),
	fetched_at, expires_at, created_at`

func scanEntry(row interface{ Scan(...any) error }) (*Entry, error) {
	e := &Entry{}
	err := row.Scan(&e.URLHash, &e.URL, &e.Status, &e.Title, &e.Description,
		&e.SiteName, &e.FaviconURL, &e.ImageURL,
		&e.ImageFullKey, &e.ImageThumbKey,
		&e.VideoID, &e.VideoProvider, &e.ErrorMessage,
		&e.FetchedAt, &e.ExpiresAt, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("preview")
		}
		return nil, err
	}
	e.URLHash = strings.TrimSpace(e.URLHash)
	return e, nil
}

func (r *Repository) Get(ctx context.Context, hash string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryCols+` FROM link_previews WHERE url_hash = $1`, hash)
	return scanEntry(row)
}

func (r *Repository) GetMany(ctx context.Context, hashes []string) ([]*Entry, error) {
	if len(hashes) == 0 {
		return []*Entry{}, nil
	}
	placeholders := make([]string, len(hashes))
	args := make([]any, len(hashes))
	for i, h := range hashes {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = h
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryCols+` FROM link_previews WHERE url_hash IN (`+strings.Join(placeholders, ", ")+`)`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SetPending writes the pending row that collapses concurrent fetches of
// the same URL. The write is advisory, not a lock: an upsert on the hash,
// last writer wins.
func (r *Repository) SetPending(ctx context.Context, hash, rawURL string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO link_previews (url_hash, url, status, created_at)
		VALUES ($1, $2, 'pending', $3)
		ON CONFLICT (url_hash) DO UPDATE
		SET status = 'pending', url = EXCLUDED.url, error_message = NULL, created_at = $3`,
		hash, rawURL, now)
	return err
}

// SetTerminal upserts the full entry in its final state.
func (r *Repository) SetTerminal(ctx context.Context, e *Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO link_previews (url_hash, url, status, title, description, site_name,
			favicon_url, image_url, image_full_key, image_thumb_key,
			video_id, video_provider, error_message, fetched_at, expires_at, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
			NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''),
			NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''), $14, $15, $16)
		ON CONFLICT (url_hash) DO UPDATE SET
			url = EXCLUDED.url,
			status = EXCLUDED.status,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			site_name = EXCLUDED.site_name,
			favicon_url = EXCLUDED.favicon_url,
			image_url = EXCLUDED.image_url,
			image_full_key = EXCLUDED.image_full_key,
			image_thumb_key = EXCLUDED.image_thumb_key,
			video_id = EXCLUDED.video_id,
			video_provider = EXCLUDED.video_provider,
			error_message = EXCLUDED.error_message,
			fetched_at = EXCLUDED.fetched_at,
			expires_at = EXCLUDED.expires_at`,
		e.URLHash, e.URL, e.Status, e.Title, e.Description, e.SiteName,
		e.FaviconURL, e.ImageURL, e.ImageFullKey, e.ImageThumbKey,
		e.VideoID, e.VideoProvider, e.ErrorMessage, e.FetchedAt, e.ExpiresAt, e.CreatedAt)
	return err
}

// DeleteExpired removes entries past their expiry and returns any stored
// blob keys so the caller can release them.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		DELETE FROM link_previews
		WHERE expires_at IS NOT NULL AND expires_at < $1
		RETURNING COALESCE(image_full_key, ''), COALESCE(image_thumb_key, '')`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var full, thumb string
		if err := rows.Scan(&full, &thumb); err != nil {
			return nil, err
		}
		if full != "" {
			keys = append(keys, full)
		}
		if thumb != "" {
			keys = append(keys, thumb)
		}
	}
	return keys, rows.Err()
}
