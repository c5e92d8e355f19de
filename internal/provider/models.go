package provider

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// CallRecord is the provider's final record for one call, normalized for
// extraction. Optional numeric fields are pointers so "absent" and zero
// can be told apart.
type CallRecord struct {
	ID          string
	Status      string
	Duration    *float64
	StartedAt   *time.Time
	EndedAt     *time.Time
	EndedReason string
	Summary     string

	// Transcript holds structured entries. Some payloads deliver the
	// transcript as one preformatted string instead; that lands in
	// TranscriptText and Transcript stays empty.
	Transcript     []TranscriptEntry
	TranscriptText string

	FunctionCalls []FunctionCall
	RecordingURL  string
	Cost          *float64
	Metadata      map[string]any
}

type TranscriptEntry struct {
	Role      string
	Text      string
	Timestamp *time.Time
}

// FunctionSaveBookingInfo is the assistant function whose parameters are
// authoritative booking data, both live (function-call webhooks) and in the
// final call record.
const FunctionSaveBookingInfo = "save_booking_info"

type FunctionCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// Provider role tag for the assistant side of the conversation.
const RoleAssistant = "assistant"

type wireCall struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Duration     *float64        `json:"duration"`
	StartedAt    string          `json:"startedAt"`
	EndedAt      string          `json:"endedAt"`
	EndedReason  string          `json:"endedReason"`
	Summary      string          `json:"summary"`
	Transcript   json.RawMessage `json:"transcript"`
	FunctionCall []FunctionCall  `json:"functionCalls"`
	RecordingURL string          `json:"recordingUrl"`
	Recording    *struct {
		URL string `json:"url"`
	} `json:"recording"`
	Cost     *float64       `json:"cost"`
	Metadata map[string]any `json:"metadata"`
}

type wireEntry struct {
	Role      string          `json:"role"`
	Text      string          `json:"text"`
	Timestamp json.RawMessage `json:"timestamp"`
}

func decodeCallRecord(body []byte) (CallRecord, error) {
	var w wireCall
	if err := json.Unmarshal(body, &w); err != nil {
		return CallRecord{}, err
	}
	rec := CallRecord{
		ID:            w.ID,
		Status:        w.Status,
		Duration:      w.Duration,
		StartedAt:     parseTime(w.StartedAt),
		EndedAt:       parseTime(w.EndedAt),
		EndedReason:   w.EndedReason,
		Summary:       w.Summary,
		FunctionCalls: w.FunctionCall,
		RecordingURL:  w.RecordingURL,
		Cost:          w.Cost,
		Metadata:      w.Metadata,
	}
	if rec.RecordingURL == "" && w.Recording != nil {
		rec.RecordingURL = w.Recording.URL
	}

	raw := bytes.TrimSpace(w.Transcript)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		if err := json.Unmarshal(raw, &rec.TranscriptText); err != nil {
			return CallRecord{}, err
		}
	case raw[0] == '[':
		var entries []wireEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return CallRecord{}, err
		}
		rec.Transcript = make([]TranscriptEntry, 0, len(entries))
		for _, e := range entries {
			rec.Transcript = append(rec.Transcript, TranscriptEntry{
				Role:      e.Role,
				Text:      e.Text,
				Timestamp: parseTimestamp(e.Timestamp),
			})
		}
	}
	return rec, nil
}

// parseTimestamp accepts RFC3339 strings or epoch milliseconds.
func parseTimestamp(raw json.RawMessage) *time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return nil
		}
		return parseTime(s)
	}
	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || ms <= 0 {
		return nil
	}
	t := time.UnixMilli(int64(ms)).UTC()
	return &t
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
