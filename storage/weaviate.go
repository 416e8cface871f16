package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ewintr.nl/vidqa/model"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const (
	className = "VideoSummary"
)

type WeaviateInfo struct {
	Scheme       string
	Host         string
	APIKey       string
	OpenAIAPIKey string
}

type Weaviate struct {
	client *weaviate.Client
}

func NewWeaviate(info WeaviateInfo) (*Weaviate, error) {
	scheme := info.Scheme
	if scheme == "" {
		scheme = "https"
	}
	config := weaviate.Config{
		Scheme: scheme,
		Host:   info.Host,
		Headers: map[string]string{
			"X-OpenAI-Api-Key": info.OpenAIAPIKey,
		},
	}
	if info.APIKey != "" {
		config.AuthConfig = auth.ApiKey{Value: info.APIKey}
	}

	c, err := weaviate.NewClient(config)
	if err != nil {
		return nil, err
	}

	return &Weaviate{client: c}, nil
}

// EnsureSchema creates the summary class when it does not exist yet.
func (w *Weaviate) EnsureSchema(ctx context.Context) error {
	dump, err := w.client.Schema().Getter().Do(ctx)
	if err != nil {
		return fmt.Errorf("could not read schema: %w", err)
	}
	for _, c := range dump.Classes {
		if c.Class == className {
			return nil
		}
	}

	classObj := &models.Class{
		Class:      className,
		Vectorizer: "text2vec-openai",
		ModuleConfig: map[string]any{
			"text2vec-openai": map[string]any{
				"model":        "ada",
				"modelVersion": "002",
				"type":         "text",
			},
		},
		Properties: []*models.Property{
			{Name: "youtubeId", DataType: []string{"text"}, ModuleConfig: skipVectorize()},
			{Name: "title", DataType: []string{"text"}},
			{Name: "channel", DataType: []string{"text"}},
			{Name: "summary", DataType: []string{"text"}},
		},
	}

	return w.client.Schema().ClassCreator().WithClass(classObj).Do(ctx)
}

func skipVectorize() map[string]any {
	return map[string]any{
		"text2vec-openai": map[string]any{"skip": true},
	}
}

func properties(video *model.Video) map[string]any {
	return map[string]any{
		"youtubeId": string(video.YoutubeID),
		"title":     video.Title,
		"channel":   video.ChannelName,
		"summary":   video.Summary,
	}
}

func (w *Weaviate) Save(ctx context.Context, video *model.Video) error {
	vID := video.ID.String()
	// check it already exists
	exists, err := w.client.Data().
		Checker().
		WithID(vID).
		WithClassName(className).
		Do(ctx)
	if err != nil {
		return err
	}

	if exists {
		return w.client.Data().
			Updater().
			WithID(vID).
			WithClassName(className).
			WithProperties(properties(video)).
			Do(ctx)
	}

	_, err = w.client.Data().
		Creator().
		WithClassName(className).
		WithID(vID).
		WithProperties(properties(video)).
		Do(ctx)

	return err
}

func (w *Weaviate) Search(ctx context.Context, query string, limit int) ([]*model.Video, error) {
	nearText := w.client.GraphQL().
		NearTextArgBuilder().
		WithConcepts([]string{query})

	resp, err := w.client.GraphQL().
		Get().
		WithClassName(className).
		WithFields(
			graphql.Field{Name: "youtubeId"},
			graphql.Field{Name: "title"},
			graphql.Field{Name: "channel"},
			graphql.Field{Name: "summary"},
		).
		WithNearText(nearText).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, errors.New(strings.Join(msgs, "; "))
	}

	return parseSearch(resp.Data)
}

func parseSearch(data map[string]models.JSONObject) ([]*model.Video, error) {
	get, ok := data["Get"].(map[string]any)
	if !ok {
		return nil, errors.New("unexpected search response")
	}
	items, _ := get[className].([]any)

	videos := make([]*model.Video, 0, len(items))
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		str := func(k string) string {
			s, _ := fields[k].(string)
			return s
		}
		videos = append(videos, &model.Video{
			YoutubeID:   model.VideoID(str("youtubeId")),
			Title:       str("title"),
			ChannelName: str("channel"),
			Summary:     str("summary"),
		})
	}

	return videos, nil
}
