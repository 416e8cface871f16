package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"ewintr.nl/vidqa/detect"
	"ewintr.nl/vidqa/model"
	"ewintr.nl/vidqa/process"
)

type YouTubeAPI struct {
	processor  *process.Processor
	summarizer *process.Summarizer
	session    *process.Session
	logger     *slog.Logger
}

func NewYouTubeAPI(processor *process.Processor, summarizer *process.Summarizer, session *process.Session, logger *slog.Logger) *YouTubeAPI {
	return &YouTubeAPI{
		processor:  processor,
		summarizer: summarizer,
		session:    session,
		logger:     logger,
	}
}

func (y *YouTubeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	head, tail := ShiftPath(r.URL.Path)

	switch {
	case r.Method == http.MethodPost && head == "detect" && tail == "/":
		y.Detect(w, r)
	case r.Method == http.MethodPost && head == "process" && tail == "/":
		y.Process(w, r)
	case r.Method == http.MethodPost && head == "qa" && tail == "/":
		y.Ask(w, r)
	case r.Method == http.MethodGet && tail == "/transcript":
		y.Transcript(w, r, head)
	case r.Method == http.MethodGet && tail == "/summary":
		y.Summary(w, r, head)
	default:
		Error(w, http.StatusNotFound, "not found", fmt.Errorf("method %s with subpath %q was not registered in the youtube api", r.Method, r.URL.Path))
	}
}

func (y *YouTubeAPI) Detect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "could not read request", err)
		return
	}

	JSON(w, http.StatusOK, detect.Detect(req.Text))
}

type processResponse struct {
	VideoID       model.VideoID   `json:"videoId"`
	Status        process.Outcome `json:"status"`
	Data          *processData    `json:"data,omitempty"`
	HasTranscript bool            `json:"hasTranscript"`
	Cached        bool            `json:"cached"`
}

// processData carries the cached artifacts. Transcript is null when the video
// has no usable captions.
type processData struct {
	VideoInfo  *model.Metadata   `json:"videoInfo"`
	Transcript *model.Transcript `json:"transcript"`
}

func (y *YouTubeAPI) Process(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VideoID string `json:"videoId"`
	}
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "could not read request", err)
		return
	}
	id, ok := detect.VideoID(req.VideoID)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid video id", fmt.Errorf("%q is not a video id or url", req.VideoID))
		return
	}

	res := y.processor.Ensure(r.Context(), id)
	resp := processResponse{
		VideoID:       id,
		Status:        res.Outcome,
		HasTranscript: res.Transcript != nil,
		Cached:        res.Cached,
	}
	if res.Metadata != nil {
		resp.Data = &processData{VideoInfo: res.Metadata, Transcript: res.Transcript}
	}
	switch res.Outcome {
	case process.OutcomeCompleted:
		JSON(w, http.StatusOK, resp)
	case process.OutcomeProcessing:
		JSON(w, http.StatusAccepted, resp)
	case process.OutcomeNotFound:
		Error(w, http.StatusNotFound, "video not found", process.ErrNotFound, id)
	default:
		returnErr(y.logger, w, http.StatusBadGateway, "could not process video", res.Err, id)
	}
}

func (y *YouTubeAPI) Transcript(w http.ResponseWriter, r *http.Request, rawID string) {
	if !model.ValidVideoID(rawID) {
		Error(w, http.StatusBadRequest, "invalid video id", fmt.Errorf("%q is not a video id", rawID))
		return
	}
	id := model.VideoID(rawID)

	res := y.processor.Transcript(r.Context(), id)
	switch res.Outcome {
	case process.TranscriptFound:
		JSON(w, http.StatusOK, struct {
			VideoID    model.VideoID     `json:"videoId"`
			Transcript *model.Transcript `json:"transcript"`
			Cached     bool              `json:"cached"`
		}{
			VideoID:    id,
			Transcript: res.Transcript,
			Cached:     res.Cached,
		})
	case process.TranscriptNotFound:
		Error(w, http.StatusNotFound, "no transcript available", errors.New("video has no usable captions"), id)
	default:
		returnErr(y.logger, w, http.StatusBadGateway, "could not fetch transcript", res.Err, id)
	}
}

func (y *YouTubeAPI) Summary(w http.ResponseWriter, r *http.Request, rawID string) {
	if !model.ValidVideoID(rawID) {
		Error(w, http.StatusBadRequest, "invalid video id", fmt.Errorf("%q is not a video id", rawID))
		return
	}
	id := model.VideoID(rawID)

	res, err := y.summarizer.GetOrCreate(r.Context(), id)
	switch {
	case errors.Is(err, process.ErrProcessing):
		JSON(w, http.StatusAccepted, struct {
			VideoID model.VideoID   `json:"videoId"`
			Status  process.Outcome `json:"status"`
		}{
			VideoID: id,
			Status:  process.OutcomeProcessing,
		})
	case errors.Is(err, process.ErrNotFound):
		Error(w, http.StatusNotFound, "video not found", err, id)
	case err != nil:
		returnErr(y.logger, w, http.StatusServiceUnavailable, "summary unavailable", err, id)
	default:
		JSON(w, http.StatusOK, struct {
			VideoID model.VideoID `json:"videoId"`
			Summary string        `json:"summary"`
			Cached  bool          `json:"cached"`
			Reduced bool          `json:"reduced"`
		}{
			VideoID: id,
			Summary: res.Text,
			Cached:  res.Cached,
			Reduced: res.Reduced,
		})
	}
}

type qaRequest struct {
	VideoID    string            `json:"videoId"`
	Question   string            `json:"question"`
	VideoInfo  *model.Metadata   `json:"videoInfo,omitempty"`
	Transcript *model.Transcript `json:"transcript,omitempty"`
	Summary    string            `json:"summary,omitempty"`
	History    []model.Turn      `json:"history,omitempty"`
	// Context is the chat log as kept by browser clients.
	Context []qaMessage `json:"context,omitempty"`
}

type qaMessage struct {
	Type             string `json:"type"`
	Content          string `json:"content"`
	RelatedTimestamp *int   `json:"relatedTimestamp,omitempty"`
}

// turns returns History, or Context when no History was sent.
func (req qaRequest) turns() []model.Turn {
	if len(req.History) > 0 || len(req.Context) == 0 {
		return req.History
	}
	turns := make([]model.Turn, 0, len(req.Context))
	for _, m := range req.Context {
		role := model.RoleAssistant
		if m.Type == string(model.RoleUser) {
			role = model.RoleUser
		}
		turns = append(turns, model.Turn{Role: role, Text: m.Content, RelatedTimestamp: m.RelatedTimestamp})
	}
	return turns
}

type qaResponse struct {
	ID               string        `json:"id"`
	Answer           string        `json:"answer"`
	RelatedTimestamp *int          `json:"relatedTimestamp"`
	VideoID          model.VideoID `json:"videoId"`
	Fallback         bool          `json:"fallback"`
}

func (y *YouTubeAPI) Ask(w http.ResponseWriter, r *http.Request) {
	var req qaRequest
	if err := decodeBody(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "could not read request", err)
		return
	}
	id, ok := detect.VideoID(req.VideoID)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid video id", fmt.Errorf("%q is not a video id or url", req.VideoID))
		return
	}

	q := process.Question{
		VideoID:    id,
		Text:       req.Question,
		Metadata:   req.VideoInfo,
		Transcript: req.Transcript,
		Summary:    req.Summary,
		History:    req.turns(),
	}
	answer, err := ask(r.Context(), y.processor, y.session, q)
	switch {
	case errors.Is(err, process.ErrEmptyQuestion):
		Error(w, http.StatusBadRequest, "question is required", err)
	case errors.Is(err, process.ErrNotFound):
		Error(w, http.StatusNotFound, "video not found", err, id)
	case err != nil:
		returnErr(y.logger, w, http.StatusBadGateway, "could not answer question", err, id)
	default:
		JSON(w, http.StatusOK, qaResponse{
			ID:               answer.ID.String(),
			Answer:           answer.Text,
			RelatedTimestamp: answer.RelatedTimestamp,
			VideoID:          answer.VideoID,
			Fallback:         answer.Fallback,
		})
	}
}

func ask(ctx context.Context, processor *process.Processor, session *process.Session, q process.Question) (process.Answer, error) {
	q, err := processor.Enrich(ctx, q)
	if err != nil {
		return process.Answer{}, err
	}
	return session.Ask(ctx, q)
}
