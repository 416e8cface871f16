package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"ewintr.nl/vidqa/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMetadata() *model.Metadata {
	return &model.Metadata{
		VideoID:       testID,
		Title:         "Never Gonna Give You Up",
		Description:   strings.Repeat("d", 800),
		Duration:      "3:33",
		ChannelName:   "Rick Astley",
		PublishedDate: "October 25, 2009",
	}
}

func TestAsk(t *testing.T) {
	gen := &fakeGenerator{reply: "The chorus starts at 1:05 in the video."}
	s := NewSession(gen, DefaultOptions(), discard())

	history := make([]model.Turn, 0, 10)
	for i := 0; i < 10; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		history = append(history, model.Turn{Role: role, Text: fmt.Sprintf("turn %d", i)})
	}

	ans, err := s.Ask(context.Background(), Question{
		VideoID:    testID,
		Text:       "When does the chorus start?",
		Metadata:   testMetadata(),
		Transcript: testTranscript(),
		Summary:    "A song about commitment.",
		History:    history,
	})
	require.NoError(t, err)
	assert.Equal(t, "The chorus starts at 1:05 in the video.", ans.Text)
	require.NotNil(t, ans.RelatedTimestamp)
	assert.Equal(t, 65, *ans.RelatedTimestamp)
	assert.Equal(t, testID, ans.VideoID)
	assert.False(t, ans.Fallback)
	assert.NotEmpty(t, ans.ID)

	require.Len(t, gen.turns, 7)
	assert.Equal(t, "turn 4", gen.turns[0].Text)
	assert.Equal(t, "When does the chorus start?", gen.turns[6].Text)
	assert.Equal(t, model.RoleUser, gen.turns[6].Role)
	assert.Len(t, history, 10, "history is not modified")

	assert.Contains(t, gen.system, "[0:18] We're no strangers to love\n")
	assert.Contains(t, gen.system, "[1:05] You know the rules\n")
	assert.Contains(t, gen.system, "Summary:\nA song about commitment.")
	assert.Contains(t, gen.system, "Description: "+strings.Repeat("d", 500)+"...\n")
	assert.NotContains(t, gen.system, strings.Repeat("d", 501))
}

func TestAskMetadataOnly(t *testing.T) {
	gen := &fakeGenerator{reply: "The video does not say."}
	s := NewSession(gen, DefaultOptions(), discard())

	ans, err := s.Ask(context.Background(), Question{VideoID: testID, Text: "Who directed it?", Metadata: testMetadata()})
	require.NoError(t, err)
	assert.Equal(t, "The video does not say.", ans.Text)
	assert.Nil(t, ans.RelatedTimestamp)
	assert.NotContains(t, gen.system, "Transcript:")
	assert.NotContains(t, gen.system, "Summary:")
	require.Len(t, gen.turns, 1)
}

func TestAskWithoutMetadata(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	s := NewSession(gen, DefaultOptions(), discard())

	_, err := s.Ask(context.Background(), Question{VideoID: testID, Text: "What is it?"})
	require.NoError(t, err)
	assert.Contains(t, gen.system, "Title: YouTube video dQw4w9WgXcQ")
}

func TestAskFailure(t *testing.T) {
	cause := errors.New("openai: 503")

	t.Run("fallback", func(t *testing.T) {
		s := NewSession(&fakeGenerator{err: cause}, DefaultOptions(), discard())
		ans, err := s.Ask(context.Background(), Question{VideoID: testID, Text: "q", Metadata: testMetadata()})
		require.NoError(t, err)
		assert.True(t, ans.Fallback)
		assert.Contains(t, fallbackAnswers, ans.Text)
		assert.ErrorIs(t, ans.Err, cause)
		assert.Nil(t, ans.RelatedTimestamp)
	})

	t.Run("no fallback", func(t *testing.T) {
		opts := DefaultOptions()
		opts.QAFallback = false
		s := NewSession(&fakeGenerator{err: cause}, opts, discard())
		_, err := s.Ask(context.Background(), Question{VideoID: testID, Text: "q", Metadata: testMetadata()})
		assert.ErrorIs(t, err, cause)
	})

	t.Run("empty question", func(t *testing.T) {
		gen := &fakeGenerator{}
		s := NewSession(gen, DefaultOptions(), discard())
		_, err := s.Ask(context.Background(), Question{VideoID: testID, Text: "  "})
		assert.ErrorIs(t, err, ErrEmptyQuestion)
		assert.Equal(t, 0, gen.calls)
	})
}

func TestTranscriptLinesBounded(t *testing.T) {
	segments := []model.Segment{
		{Text: "one", Start: 0},
		{Text: "two", Start: 61},
		{Text: "three", Start: 3725},
	}
	assert.Equal(t, "[0:00] one\n[1:01] two\n[62:05] three\n", transcriptLines(segments, 0))
	assert.Equal(t, "[0:00] one\n[1:01] two\n[transcript truncated]\n", transcriptLines(segments, 25))
}

func TestExtractTimestamp(t *testing.T) {
	for _, tc := range []struct {
		text string
		exp  *int
	}{
		{text: "see 2:30 for details", exp: ptr(150)},
		{text: "at 1:02:03 he says", exp: ptr(3723)},
		{text: "from 75:10 onwards", exp: ptr(4510)},
		{text: "ratio 1:99 then 0:45", exp: ptr(45)},
		{text: "no timestamp here", exp: nil},
		{text: "score was 3:2", exp: nil},
	} {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.exp, ExtractTimestamp(tc.text))
		})
	}
}

func ptr(i int) *int { return &i }
