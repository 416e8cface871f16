package storage

import (
	"context"
	"database/sql"
	"fmt"

	"ewintr.nl/vidqa/model"
	_ "github.com/lib/pq"
)

type PostgresInfo struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
}

func (pi PostgresInfo) dsn() string {
	sslMode := pi.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pi.Host, pi.Port, pi.User, pi.Password, pi.Database, sslMode)
}

type Postgres struct {
	db *sql.DB
}

func NewPostgres(ctx context.Context, pi PostgresInfo) (*Postgres, error) {
	db, err := sql.Open("postgres", pi.dsn())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres unreachable at %s:%s: %w", pi.Host, pi.Port, err)
	}

	p := &Postgres{db: db}
	if err := p.migrate(ctx, pgMigration); err != nil {
		db.Close()
		return nil, err
	}

	return p, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) migrate(ctx context.Context, wanted []string) error {
	query := `CREATE TABLE IF NOT EXISTS migration
("id" SERIAL PRIMARY KEY, "query" TEXT)`
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return err
	}

	// find existing
	rows, err := p.db.QueryContext(ctx, `SELECT query FROM migration ORDER BY id`)
	if err != nil {
		return err
	}

	existing := []string{}
	for rows.Next() {
		var query string
		if err := rows.Scan(&query); err != nil {
			rows.Close()
			return err
		}
		existing = append(existing, query)
	}
	rows.Close()

	// compare
	missing, err := compareMigrations(wanted, existing)
	if err != nil {
		return err
	}

	// execute missing
	for _, query := range missing {
		if _, err := p.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		// register
		if _, err := p.db.ExecContext(ctx, `
INSERT INTO migration
(query) VALUES ($1)
`, query); err != nil {
			return err
		}
	}

	return nil
}

func compareMigrations(wanted, existing []string) ([]string, error) {
	needed := []string{}
	if len(wanted) < len(existing) {
		return []string{}, fmt.Errorf("not enough migrations")
	}

	for i, want := range wanted {
		switch {
		case i >= len(existing):
			needed = append(needed, want)
		case want == existing[i]:
			// do nothing
		case want != existing[i]:
			return []string{}, fmt.Errorf("incompatible migration: %v", want)
		}
	}

	return needed, nil
}

type PostgresVideoRepository struct {
	db *sql.DB
}

func NewPostgresVideoRepository(pg *Postgres) *PostgresVideoRepository {
	return &PostgresVideoRepository{db: pg.db}
}

// Save upserts on youtube_id. An empty summary never overwrites a stored one,
// and the stored id is written back into video.
func (p *PostgresVideoRepository) Save(ctx context.Context, video *model.Video) error {
	query := `INSERT INTO video
(id, status, youtube_id, title, channel_name, duration, published_date, has_transcript, degraded, summary, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (youtube_id) DO UPDATE SET
status = EXCLUDED.status,
title = EXCLUDED.title,
channel_name = EXCLUDED.channel_name,
duration = EXCLUDED.duration,
published_date = EXCLUDED.published_date,
has_transcript = EXCLUDED.has_transcript,
degraded = EXCLUDED.degraded,
summary = CASE WHEN EXCLUDED.summary = '' THEN video.summary ELSE EXCLUDED.summary END,
updated_at = EXCLUDED.updated_at
RETURNING id`
	row := p.db.QueryRowContext(ctx, query,
		video.ID,
		video.Status,
		video.YoutubeID,
		video.Title,
		video.ChannelName,
		video.Duration,
		video.PublishedDate,
		video.HasTranscript,
		video.Degraded,
		video.Summary,
		video.UpdatedAt,
	)
	if err := row.Scan(&video.ID); err != nil {
		return fmt.Errorf("could not save video %s: %w", video.YoutubeID, err)
	}

	return nil
}

func (p *PostgresVideoRepository) FindRecent(ctx context.Context, limit int) ([]*model.Video, error) {
	query := `SELECT id, status, youtube_id, title, channel_name, duration, published_date, has_transcript, degraded, summary, updated_at
FROM video
ORDER BY updated_at DESC
LIMIT $1`
	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	videos := []*model.Video{}
	for rows.Next() {
		v := &model.Video{}
		if err := rows.Scan(
			&v.ID,
			&v.Status,
			&v.YoutubeID,
			&v.Title,
			&v.ChannelName,
			&v.Duration,
			&v.PublishedDate,
			&v.HasTranscript,
			&v.Degraded,
			&v.Summary,
			&v.UpdatedAt,
		); err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}

	return videos, rows.Err()
}
