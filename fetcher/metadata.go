package fetcher

import (
	"context"
	"errors"

	"ewintr.nl/vidqa/model"
)

// ErrNotFound means the provider positively reported that the video does not
// exist.
var ErrNotFound = errors.New("video not found")

type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, id model.VideoID) (*model.Metadata, error)
}
