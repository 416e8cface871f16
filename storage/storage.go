package storage

import (
	"context"

	"ewintr.nl/vidqa/model"
)

// VideoRepository archives processed videos and their summaries.
type VideoRepository interface {
	Save(ctx context.Context, video *model.Video) error
	FindRecent(ctx context.Context, limit int) ([]*model.Video, error)
}

// SummaryIndex makes summaries searchable by meaning.
type SummaryIndex interface {
	Save(ctx context.Context, video *model.Video) error
	Search(ctx context.Context, query string, limit int) ([]*model.Video, error)
}
