// Package extract turns a provider call record into the fields stored on a
// call request: a readable transcript, a summary and booking data.
package extract

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"call-pipeline/internal/provider"
)

// Booking map keys produced by the transcript heuristics.
const (
	KeyCustomerName = "customer_name"
	KeyPhoneNumber  = "phone_number"
	KeyEmail        = "email"
)

// Result is everything extraction derives from one call record.
type Result struct {
	Summary    string
	Transcript string
	// BookingInfo is nil when nothing was found.
	BookingInfo map[string]any
	// BookingAuthoritative is true when BookingInfo came from the
	// save_booking_info function result.
	BookingAuthoritative bool
}

func Extract(rec provider.CallRecord) Result {
	info, authoritative := Booking(rec)
	return Result{
		Summary:              Summary(rec),
		Transcript:           FormatTranscript(rec),
		BookingInfo:          info,
		BookingAuthoritative: authoritative,
	}
}

// FormatTranscript renders one "[HH:MM:SS] AI|Customer: text" line per
// entry. A transcript delivered as a plain string is returned unchanged.
func FormatTranscript(rec provider.CallRecord) string {
	if len(rec.Transcript) == 0 {
		return rec.TranscriptText
	}
	lines := make([]string, 0, len(rec.Transcript))
	for _, e := range rec.Transcript {
		ts := ""
		if e.Timestamp != nil {
			ts = e.Timestamp.UTC().Format("15:04:05")
		}
		role := "Customer"
		if e.Role == provider.RoleAssistant {
			role = "AI"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", ts, role, e.Text))
	}
	return strings.Join(lines, "\n")
}

var (
	discussionKeywords = []string{"booking", "appointment", "schedule", "order", "support", "problem", "issue"}

	topicRules = []struct {
		topic    string
		keywords []string
	}{
		{"refund request", []string{"refund", "money back"}},
		{"delivery inquiry", []string{"delivery", "order status"}},
		{"complaint", []string{"complaint", "problem"}},
		{"appointment scheduling", []string{"appointment", "booking"}},
	}
)

// Summary returns the provider's summary when present, otherwise a
// deterministic one built from status, duration, ended reason and
// keyword scans of the transcript.
func Summary(rec provider.CallRecord) string {
	if rec.Summary != "" {
		return rec.Summary
	}

	var b strings.Builder
	b.WriteString("Call " + rec.Status)
	if rec.Duration != nil && *rec.Duration != 0 {
		fmt.Fprintf(&b, " (Duration: %ds)", int64(math.Round(*rec.Duration)))
	}
	if rec.EndedReason != "" {
		b.WriteString(". Ended due to: " + rec.EndedReason)
	}

	texts := entryTexts(rec)
	if len(texts) == 0 {
		return b.String()
	}

	// Only the tail of the conversation decides the generic clause.
	tail := texts[max(0, len(texts)-5):]
	for _, text := range tail {
		if containsAny(strings.ToLower(text), discussionKeywords) {
			b.WriteString(". Customer discussed booking/appointment/support details.")
			break
		}
	}

	full := strings.ToLower(strings.Join(texts, " "))
	var topics []string
	for _, rule := range topicRules {
		if containsAny(full, rule.keywords) {
			topics = append(topics, rule.topic)
		}
	}
	if len(topics) > 0 {
		b.WriteString(" Topics: " + strings.Join(topics, ", ") + ".")
	}
	return b.String()
}

var (
	namePattern  = regexp.MustCompile(`(?i)my name is ([a-z]+(?:[ \t]+[a-z]+)*)`)
	phonePattern = regexp.MustCompile(`\+?\d[\d \t\-()]{8,}\d`)
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// Booking returns booking data and whether it is authoritative.
//
// The save_booking_info function result wins outright. Without it, three
// independent patterns run over the transcript text. The fallback is
// best-effort: any long enough digit run reads as a phone number.
func Booking(rec provider.CallRecord) (map[string]any, bool) {
	for _, fc := range rec.FunctionCalls {
		if fc.Name == provider.FunctionSaveBookingInfo && fc.Parameters != nil {
			return fc.Parameters, true
		}
	}

	texts := entryTexts(rec)
	if len(texts) == 0 {
		return nil, false
	}
	// Entries are joined by newlines so a match never spans two speakers.
	full := strings.Join(texts, "\n")

	info := map[string]any{}
	if m := namePattern.FindStringSubmatch(full); m != nil {
		info[KeyCustomerName] = strings.TrimSpace(m[1])
	}
	if m := phonePattern.FindString(full); m != "" {
		info[KeyPhoneNumber] = strings.TrimSpace(m)
	}
	if m := emailPattern.FindString(full); m != "" {
		info[KeyEmail] = m
	}
	if len(info) == 0 {
		return nil, false
	}
	return info, false
}

func entryTexts(rec provider.CallRecord) []string {
	if len(rec.Transcript) > 0 {
		out := make([]string, 0, len(rec.Transcript))
		for _, e := range rec.Transcript {
			out = append(out, e.Text)
		}
		return out
	}
	if rec.TranscriptText == "" {
		return nil
	}
	return strings.Split(rec.TranscriptText, "\n")
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
