package storage

import (
	"testing"

	"ewintr.nl/vidqa/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

func TestParseSearch(t *testing.T) {
	data := map[string]models.JSONObject{
		"Get": map[string]any{
			className: []any{
				map[string]any{"youtubeId": "dQw4w9WgXcQ", "title": "Song", "channel": "Rick", "summary": "## Overview"},
				"garbage",
				map[string]any{"youtubeId": "abc12345678", "title": 42},
			},
		},
	}

	act, err := parseSearch(data)
	require.NoError(t, err)
	require.Len(t, act, 2)
	assert.Equal(t, &model.Video{YoutubeID: "dQw4w9WgXcQ", Title: "Song", ChannelName: "Rick", Summary: "## Overview"}, act[0])
	assert.Equal(t, model.VideoID("abc12345678"), act[1].YoutubeID)
	assert.Empty(t, act[1].Title)

	_, err = parseSearch(map[string]models.JSONObject{})
	assert.Error(t, err)
}

func TestProperties(t *testing.T) {
	v := &model.Video{ID: uuid.New(), YoutubeID: "dQw4w9WgXcQ", Title: "Song", ChannelName: "Rick", Summary: "text"}
	assert.Equal(t, map[string]any{
		"youtubeId": "dQw4w9WgXcQ",
		"title":     "Song",
		"channel":   "Rick",
		"summary":   "text",
	}, properties(v))
}
