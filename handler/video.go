package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ewintr.nl/vidqa/model"
	"ewintr.nl/vidqa/storage"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var errDisabled = errors.New("feature not configured")

// VideoAPI exposes the archive of processed videos and the summary index.
type VideoAPI struct {
	videoRepo storage.VideoRepository
	index     storage.SummaryIndex
	logger    *slog.Logger
}

func NewVideoAPI(videoRepo storage.VideoRepository, index storage.SummaryIndex, logger *slog.Logger) *VideoAPI {
	return &VideoAPI{
		videoRepo: videoRepo,
		index:     index,
		logger:    logger,
	}
}

func (v *VideoAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	head, _ := ShiftPath(r.URL.Path)

	switch {
	case r.Method == http.MethodGet && head == "":
		v.List(w, r)
	case r.Method == http.MethodGet && head == "search":
		v.Search(w, r)
	default:
		Error(w, http.StatusNotFound, "not found", fmt.Errorf("method %s with subpath %q was not registered in the video api", r.Method, head))
	}
}

type respVideo struct {
	YoutubeID     model.VideoID `json:"videoId"`
	Title         string        `json:"title"`
	ChannelName   string        `json:"channelName"`
	Duration      string        `json:"duration"`
	HasTranscript bool          `json:"hasTranscript"`
	Summary       string        `json:"summary,omitempty"`
	UpdatedAt     *time.Time    `json:"updatedAt,omitempty"`
}

func toResp(videos []*model.Video) []respVideo {
	resp := make([]respVideo, 0, len(videos))
	for _, v := range videos {
		rv := respVideo{
			YoutubeID:     v.YoutubeID,
			Title:         v.Title,
			ChannelName:   v.ChannelName,
			Duration:      v.Duration,
			HasTranscript: v.HasTranscript,
			Summary:       v.Summary,
		}
		if !v.UpdatedAt.IsZero() {
			rv.UpdatedAt = &v.UpdatedAt
		}
		resp = append(resp, rv)
	}
	return resp
}

func (v *VideoAPI) List(w http.ResponseWriter, r *http.Request) {
	if v.videoRepo == nil {
		Error(w, http.StatusNotFound, "video archive is disabled", errDisabled)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid limit", err)
		return
	}

	videos, err := v.videoRepo.FindRecent(r.Context(), limit)
	if err != nil {
		returnErr(v.logger, w, http.StatusInternalServerError, "could not list videos", err)
		return
	}

	JSON(w, http.StatusOK, toResp(videos))
}

func (v *VideoAPI) Search(w http.ResponseWriter, r *http.Request) {
	if v.index == nil {
		Error(w, http.StatusNotFound, "summary search is disabled", errDisabled)
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		Error(w, http.StatusBadRequest, "query is required", errors.New("missing q parameter"))
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid limit", err)
		return
	}

	videos, err := v.index.Search(r.Context(), query, limit)
	if err != nil {
		returnErr(v.logger, w, http.StatusBadGateway, "could not search summaries", err, query)
		return
	}

	JSON(w, http.StatusOK, toResp(videos))
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if limit <= 0 {
		return 0, fmt.Errorf("limit must be positive, got %d", limit)
	}
	return min(limit, maxListLimit), nil
}
