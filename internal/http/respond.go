package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/splax/logscribe/internal/domain"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type entryResponse struct {
	ID               int64          `json:"id"`
	UploadID         int64          `json:"upload_id"`
	Timestamp        string         `json:"timestamp"`
	Level            string         `json:"log_level"`
	Source           string         `json:"source"`
	Message          string         `json:"message"`
	AdditionalFields map[string]any `json:"additional_fields"`
}

type searchResponse struct {
	Logs    []entryResponse `json:"logs"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
}

type uploadResponse struct {
	ID           int64  `json:"id"`
	Filename     string `json:"filename"`
	Size         int64  `json:"size"`
	Format       string `json:"format,omitempty"`
	Timestamp    string `json:"timestamp"`
	Status       string `json:"status"`
	ParsedLines  int    `json:"parsed_lines"`
	SkippedLines int    `json:"skipped_lines"`
}

type analyticsResponse struct {
	Series []domain.Series `json:"series"`
}

func toEntryResponse(e domain.LogEntry) entryResponse {
	extra := e.ExtraFields
	if extra == nil {
		extra = map[string]any{}
	}
	return entryResponse{
		ID:               e.ID,
		UploadID:         e.UploadID,
		Timestamp:        e.Timestamp,
		Level:            e.Level,
		Source:           e.Source,
		Message:          e.Message,
		AdditionalFields: extra,
	}
}

func toUploadResponse(u domain.Upload) uploadResponse {
	return uploadResponse{
		ID:           u.ID,
		Filename:     u.Filename,
		Size:         u.Size,
		Format:       u.Format,
		Timestamp:    u.Timestamp,
		Status:       string(u.Status),
		ParsedLines:  u.ParsedLines,
		SkippedLines: u.SkippedLines,
	}
}
