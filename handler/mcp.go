package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"ewintr.nl/vidqa/detect"
	"ewintr.nl/vidqa/model"
	"ewintr.nl/vidqa/process"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes the video operations as Model Context Protocol tools.
type MCPServer struct {
	deps      Deps
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

func NewMCPServer(deps Deps, version string, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		deps: deps,
		mcpServer: server.NewMCPServer(
			"vidqa",
			version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		logger: logger,
	}
	s.registerTools()

	return s
}

func (s *MCPServer) registerTools() {
	video := mcp.WithString("video",
		mcp.Description("YouTube video URL or 11 character video id"),
		mcp.Required(),
	)

	s.mcpServer.AddTool(mcp.NewTool("detect_youtube_urls",
		mcp.WithDescription("Find YouTube video links in a piece of text and return their video ids."),
		mcp.WithString("text",
			mcp.Description("Free text that may contain YouTube links"),
			mcp.Required(),
		),
	), s.handleDetect)

	s.mcpServer.AddTool(mcp.NewTool("process_youtube_video",
		mcp.WithDescription("Fetch and cache metadata and transcript of a video. Returns the processing status and the metadata."),
		video,
	), s.handleProcess)

	s.mcpServer.AddTool(mcp.NewTool("get_youtube_transcript",
		mcp.WithDescription("Get the timestamped transcript of a video from its captions. Fails when the video has no usable captions."),
		video,
	), s.handleTranscript)

	s.mcpServer.AddTool(mcp.NewTool("get_youtube_summary",
		mcp.WithDescription("Get a structured summary of a video: overview, key points, details and conclusion."),
		video,
	), s.handleSummary)

	s.mcpServer.AddTool(mcp.NewTool("ask_youtube_question",
		mcp.WithDescription("Answer a question about the content of a video. Answers may reference a timestamp."),
		video,
		mcp.WithString("question",
			mcp.Description("The question about the video"),
			mcp.Required(),
		),
	), s.handleAsk)
}

// Serve runs the server on the given streams until ctx is cancelled or the
// input is closed.
func (s *MCPServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	return stdio.Listen(ctx, in, out)
}

func videoArg(request mcp.CallToolRequest) (model.VideoID, *mcp.CallToolResult) {
	raw, err := request.RequireString("video")
	if err != nil {
		return "", mcp.NewToolResultError("video parameter is required and must be a string")
	}
	id, ok := detect.VideoID(raw)
	if !ok {
		return "", mcp.NewToolResultErrorf("%q is not a YouTube video URL or id", raw)
	}
	return id, nil
}

func (s *MCPServer) handleDetect(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text parameter is required and must be a string"), nil
	}

	body, err := json.MarshalIndent(detect.Detect(text), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal detection result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}

func (s *MCPServer) handleProcess(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := videoArg(request)
	if bad != nil {
		return bad, nil
	}

	res := s.deps.Processor.Ensure(ctx, id)
	switch res.Outcome {
	case process.OutcomeProcessing:
		return mcp.NewToolResultText(fmt.Sprintf("Video %s is being processed, try again shortly.", id)), nil
	case process.OutcomeNotFound:
		return mcp.NewToolResultErrorf("video %s not found", id), nil
	case process.OutcomeFailed:
		return mcp.NewToolResultErrorFromErr("processing failed", res.Err), nil
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "Status: %s\n", res.Outcome)
	writeMetadata(&buf, res.Metadata)
	fmt.Fprintf(&buf, "Has Transcript: %t\n", res.Transcript != nil)
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *MCPServer) handleTranscript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := videoArg(request)
	if bad != nil {
		return bad, nil
	}

	res := s.deps.Processor.Transcript(ctx, id)
	switch res.Outcome {
	case process.TranscriptNotFound:
		return mcp.NewToolResultErrorf("video %s has no usable captions", id), nil
	case process.TranscriptFailed:
		return mcp.NewToolResultErrorFromErr("transcript fetch failed", res.Err), nil
	}

	var buf strings.Builder
	for _, seg := range res.Transcript.Segments {
		fmt.Fprintf(&buf, "[%s] %s\n", process.FormatTimestamp(int(seg.Start)), seg.Text)
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *MCPServer) handleSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := videoArg(request)
	if bad != nil {
		return bad, nil
	}

	res, err := s.deps.Summarizer.GetOrCreate(ctx, id)
	switch {
	case errors.Is(err, process.ErrProcessing):
		return mcp.NewToolResultText(fmt.Sprintf("Video %s is being processed, try again shortly.", id)), nil
	case errors.Is(err, process.ErrNotFound):
		return mcp.NewToolResultErrorf("video %s not found", id), nil
	case err != nil:
		return mcp.NewToolResultErrorFromErr("summary unavailable", err), nil
	}
	return mcp.NewToolResultText(res.Text), nil
}

func (s *MCPServer) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := videoArg(request)
	if bad != nil {
		return bad, nil
	}
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question parameter is required and must be a string"), nil
	}

	answer, err := ask(ctx, s.deps.Processor, s.deps.Session, process.Question{VideoID: id, Text: question})
	switch {
	case errors.Is(err, process.ErrNotFound):
		return mcp.NewToolResultErrorf("video %s not found", id), nil
	case err != nil:
		return mcp.NewToolResultErrorFromErr("could not answer question", err), nil
	}

	text := answer.Text
	if answer.RelatedTimestamp != nil {
		text += fmt.Sprintf("\n\nRelated timestamp: %s", process.FormatTimestamp(*answer.RelatedTimestamp))
	}
	return mcp.NewToolResultText(text), nil
}

func writeMetadata(buf *strings.Builder, md *model.Metadata) {
	if md == nil {
		return
	}
	fmt.Fprintf(buf, "Title: %s\n", md.Title)
	fmt.Fprintf(buf, "Channel: %s\n", md.ChannelName)
	fmt.Fprintf(buf, "Duration: %s\n", md.Duration)
	fmt.Fprintf(buf, "Published: %s\n", md.PublishedDate)
	fmt.Fprintf(buf, "Views: %s\n", md.ViewCount)
	if md.Degraded {
		buf.WriteString("Note: metadata is a placeholder, the YouTube API was unavailable\n")
	}
	if md.Description != "" {
		fmt.Fprintf(buf, "Description: %s\n", md.Description)
	}
}
