package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ewintr.nl/vidqa/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIComplete(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  It is about music. "},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIInfo{APIKey: "sk-test", BaseURL: srv.URL + "/v1", MaxTokens: 500})
	act, err := o.Complete(context.Background(), "system prompt", []model.Turn{
		{Role: model.RoleUser, Text: "first"},
		{Role: model.RoleAssistant, Text: "reply"},
		{Role: model.RoleUser, Text: "what is it about?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "It is about music.", act)

	assert.Equal(t, "gpt-3.5-turbo", got.Model)
	assert.Equal(t, 500, got.MaxTokens)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "system prompt", got.Messages[0].Content)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "what is it about?", got.Messages[3].Content)
}

func TestOpenAICompleteErrors(t *testing.T) {
	t.Run("no key", func(t *testing.T) {
		_, err := NewOpenAI(OpenAIInfo{}).Complete(context.Background(), "s", nil)
		assert.ErrorIs(t, err, ErrNoAPIKey)
	})

	for _, tc := range []struct {
		name   string
		status int
		body   string
	}{
		{name: "api error", status: http.StatusInternalServerError, body: `{"error":{"message":"boom","type":"server_error"}}`},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`},
		{name: "empty content", status: http.StatusOK, body: `{"choices":[{"message":{"role":"assistant","content":""}}]}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			o := NewOpenAI(OpenAIInfo{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
			_, err := o.Complete(context.Background(), "s", []model.Turn{{Role: model.RoleUser, Text: "q"}})
			assert.Error(t, err)
		})
	}
}
