package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchCall_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/call/c1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k1" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"c1","status":"ended","duration":61.4,"endedReason":"hangup",
			"startedAt":"2024-05-01T10:00:00Z",
			"transcript":[
				{"role":"assistant","text":"Hello","timestamp":"2024-05-01T10:00:01Z"},
				{"role":"user","text":"Hi","timestamp":1714557602000}
			],
			"functionCalls":[{"name":"save_booking_info","parameters":{"name":"A"}}],
			"recording":{"url":"https://r/1.wav"},
			"cost":0.12
		}`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, APIKey: "k1"})
	rec, err := c.FetchCall(context.Background(), "c1")
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if rec.ID != "c1" || rec.Status != "ended" || rec.EndedReason != "hangup" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Duration == nil || *rec.Duration != 61.4 {
		t.Fatalf("expected duration")
	}
	if len(rec.Transcript) != 2 || rec.Transcript[0].Timestamp == nil || rec.Transcript[1].Timestamp == nil {
		t.Fatalf("unexpected transcript: %+v", rec.Transcript)
	}
	if rec.Transcript[1].Timestamp.Format("15:04:05") != "10:00:02" {
		t.Fatalf("unexpected epoch timestamp %v", rec.Transcript[1].Timestamp)
	}
	if rec.RecordingURL != "https://r/1.wav" {
		t.Fatalf("expected nested recording url, got %q", rec.RecordingURL)
	}
	if len(rec.FunctionCalls) != 1 || rec.FunctionCalls[0].Parameters["name"] != "A" {
		t.Fatalf("unexpected function calls: %+v", rec.FunctionCalls)
	}
}

func TestFetchCall_StringTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"c1","status":"ended","transcript":"AI: hi\nUser: bye"}`))
	}))
	defer srv.Close()

	rec, err := NewClient(ClientOptions{BaseURL: srv.URL, APIKey: "k"}).FetchCall(context.Background(), "c1")
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if rec.TranscriptText != "AI: hi\nUser: bye" || len(rec.Transcript) != 0 {
		t.Fatalf("unexpected transcript: %+v", rec)
	}
}

func TestFetchCall_NotFoundIsNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(ClientOptions{BaseURL: srv.URL, APIKey: "k"}).FetchCall(context.Background(), "c1")
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestFetchCall_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid Key"}`))
	}))
	defer srv.Close()

	_, err := NewClient(ClientOptions{BaseURL: srv.URL, APIKey: "k"}).FetchCall(context.Background(), "c1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "Invalid Key" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestFetchCall_NoKey(t *testing.T) {
	_, err := NewClient(ClientOptions{}).FetchCall(context.Background(), "c1")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
