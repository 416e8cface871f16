package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const maxBodySize = 1 << 20

func Index(w http.ResponseWriter) {
	Message(w, http.StatusOK, "vidqa index")
}

func Message(w http.ResponseWriter, status int, message string, details ...any) {
	JSON(w, status, struct {
		Message string `json:"message"`
		Details []any  `json:"details,omitempty"`
	}{
		Message: message,
		Details: details,
	})
}

func Error(w http.ResponseWriter, status int, message string, err error, details ...any) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	JSON(w, status, struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Details []any  `json:"details,omitempty"`
	}{
		Message: message,
		Error:   err.Error(),
		Details: details,
	})
}

// JSON writes v as the response body.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	body, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, `{"message": "could not marshal response", "error": %q}`, err.Error())
		return
	}
	w.WriteHeader(status)
	w.Write(body)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func returnErr(logger *slog.Logger, w http.ResponseWriter, status int, message string, err error, details ...any) {
	if status >= http.StatusInternalServerError {
		logger.Error(message, slog.Any("error", err), slog.String("details", fmt.Sprintf("%+v", details)))
	}
	Error(w, status, message, err, details...)
}
