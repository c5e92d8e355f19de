package extract

import (
	"reflect"
	"testing"
	"time"

	"call-pipeline/internal/provider"
)

func entries(texts ...string) []provider.TranscriptEntry {
	out := make([]provider.TranscriptEntry, 0, len(texts))
	for i, text := range texts {
		role := "user"
		if i%2 == 0 {
			role = provider.RoleAssistant
		}
		out = append(out, provider.TranscriptEntry{Role: role, Text: text})
	}
	return out
}

func TestBooking_Heuristic(t *testing.T) {
	rec := provider.CallRecord{Transcript: entries(
		"Hello, who am I speaking with?",
		"Hi, my name is Asha Verma",
		"What number can we reach you on?",
		"It's +91 9876543210",
		"And your email?",
		"asha@example.com",
	)}

	info, authoritative := Booking(rec)
	if authoritative {
		t.Fatalf("heuristic booking must not be authoritative")
	}
	want := map[string]any{
		KeyCustomerName: "Asha Verma",
		KeyPhoneNumber:  "+91 9876543210",
		KeyEmail:        "asha@example.com",
	}
	if !reflect.DeepEqual(info, want) {
		t.Fatalf("expected %v, got %v", want, info)
	}
}

func TestBooking_FunctionResultWins(t *testing.T) {
	params := map[string]any{"customer_name": "A. Verma", "date": "2024-05-02", "slot": "10:30"}
	rec := provider.CallRecord{
		Transcript: entries("my name is Asha Verma", "call me on 9876543210"),
		FunctionCalls: []provider.FunctionCall{
			{Name: "lookup_slot", Parameters: map[string]any{"x": 1}},
			{Name: provider.FunctionSaveBookingInfo, Parameters: params},
		},
	}
	info, authoritative := Booking(rec)
	if !authoritative {
		t.Fatalf("expected authoritative booking")
	}
	if !reflect.DeepEqual(info, params) {
		t.Fatalf("expected function parameters verbatim, got %v", info)
	}
}

func TestBooking_NothingFound(t *testing.T) {
	info, _ := Booking(provider.CallRecord{Transcript: entries("hello", "bye")})
	if info != nil {
		t.Fatalf("expected nil, got %v", info)
	}
	info, _ = Booking(provider.CallRecord{})
	if info != nil {
		t.Fatalf("expected nil, got %v", info)
	}
}

func TestBooking_DigitRunFalsePositive(t *testing.T) {
	// Known trade-off: an order number is read as a phone number.
	info, _ := Booking(provider.CallRecord{Transcript: entries("my order is 4400 1234 5678")})
	if info[KeyPhoneNumber] != "4400 1234 5678" {
		t.Fatalf("expected digit run to match, got %v", info)
	}
}

func TestFormatTranscript(t *testing.T) {
	ts := time.Date(2024, 5, 1, 9, 5, 7, 0, time.UTC)
	rec := provider.CallRecord{Transcript: []provider.TranscriptEntry{
		{Role: "assistant", Text: "Hello", Timestamp: &ts},
		{Role: "user", Text: "Hi"},
		{Role: "tool", Text: "ok", Timestamp: &ts},
	}}
	want := "[09:05:07] AI: Hello\n[] Customer: Hi\n[09:05:07] Customer: ok"
	if got := FormatTranscript(rec); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	plain := provider.CallRecord{TranscriptText: "AI: hi\nUser: bye"}
	if got := FormatTranscript(plain); got != plain.TranscriptText {
		t.Fatalf("expected verbatim transcript, got %q", got)
	}
	if got := FormatTranscript(provider.CallRecord{}); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestSummary(t *testing.T) {
	dur := 61.6
	cases := []struct {
		name string
		rec  provider.CallRecord
		want string
	}{
		{
			name: "provider summary",
			rec:  provider.CallRecord{Summary: "Customer booked a slot.", Status: "ended"},
			want: "Customer booked a slot.",
		},
		{
			name: "base clause",
			rec:  provider.CallRecord{Status: "ended", Duration: &dur, EndedReason: "hangup"},
			want: "Call ended (Duration: 62s). Ended due to: hangup",
		},
		{
			name: "discussion and topics",
			rec: provider.CallRecord{
				Status:      "ended",
				EndedReason: "customer-ended-call",
				Transcript:  entries("I want a refund", "sure", "also an appointment please"),
			},
			want: "Call ended. Ended due to: customer-ended-call. Customer discussed booking/appointment/support details. Topics: refund request, appointment scheduling.",
		},
		{
			name: "topics only outside tail",
			rec: provider.CallRecord{
				Status:     "ended",
				Transcript: entries("where is my delivery", "a", "b", "c", "d", "e"),
			},
			want: "Call ended Topics: delivery inquiry.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Summary(tc.rec); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	rec := provider.CallRecord{
		Status:        "ended",
		Summary:       "ok",
		Transcript:    entries("hello"),
		FunctionCalls: []provider.FunctionCall{{Name: provider.FunctionSaveBookingInfo, Parameters: map[string]any{"a": "b"}}},
	}
	res := Extract(rec)
	if res.Summary != "ok" || res.Transcript != "[] AI: hello" || !res.BookingAuthoritative {
		t.Fatalf("unexpected result: %+v", res)
	}
}
