package storage

var pgMigration = []string{
	`CREATE TYPE video_status AS ENUM ('processing', 'completed', 'failed')`,
	`CREATE TABLE video (
id uuid PRIMARY KEY,
status video_status NOT NULL,
youtube_id VARCHAR(11) NOT NULL UNIQUE,
title TEXT NOT NULL,
channel_name TEXT NOT NULL DEFAULT '',
duration VARCHAR(32) NOT NULL DEFAULT '',
published_date VARCHAR(64) NOT NULL DEFAULT '',
has_transcript BOOLEAN NOT NULL DEFAULT FALSE,
degraded BOOLEAN NOT NULL DEFAULT FALSE,
summary TEXT NOT NULL DEFAULT '',
updated_at TIMESTAMP WITH TIME ZONE NOT NULL
)`,
	`CREATE INDEX video_updated_at_idx ON video (updated_at DESC)`,
}
