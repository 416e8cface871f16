package fetcher

import (
	"context"

	"ewintr.nl/vidqa/model"
)

// Generator turns a system prompt and a conversation into generated text.
type Generator interface {
	Complete(ctx context.Context, system string, turns []model.Turn) (string, error)
}
