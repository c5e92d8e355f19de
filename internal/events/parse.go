package events

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	ErrMalformed     = errors.New("events: invalid JSON payload")
	ErrMissingCallID = errors.New("events: missing call ID in webhook payload")
)

//go:embed envelope.schema.json
var envelopeSchema string

const envelopeSchemaURL = "envelope.schema.json"

var compiledEnvelope = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchema))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(envelopeSchemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(envelopeSchemaURL)
})

type wireEnvelope struct {
	Type string `json:"type"`
	Call struct {
		ID           string   `json:"id"`
		Status       string   `json:"status"`
		EndedReason  string   `json:"endedReason"`
		Duration     *float64 `json:"duration"`
		RecordingURL string   `json:"recordingUrl"`
		Metadata     struct {
			BusinessID string `json:"businessId"`
		} `json:"metadata"`
	} `json:"call"`
	Transcript *struct {
		Role string `json:"role"`
		Text string `json:"text"`
	} `json:"transcript"`
	FunctionCall *struct {
		Name       string         `json:"name"`
		Parameters map[string]any `json:"parameters"`
	} `json:"functionCall"`
}

// Parse validates body against the envelope schema and decodes it.
//
// ErrMalformed is returned for bodies that are not JSON. Any schema
// violation (most commonly an absent or empty call.id) is reported as
// ErrMissingCallID wrapping the validation detail.
func Parse(body []byte) (Event, error) {
	sch, err := compiledEnvelope()
	if err != nil {
		return nil, fmt.Errorf("events: compile envelope schema: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, ErrMalformed
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingCallID, err)
	}

	var env wireEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, ErrMalformed
	}

	info := CallInfo{
		ID:           env.Call.ID,
		Status:       env.Call.Status,
		BusinessID:   env.Call.Metadata.BusinessID,
		EndedReason:  env.Call.EndedReason,
		Duration:     env.Call.Duration,
		RecordingURL: env.Call.RecordingURL,
	}

	switch env.Type {
	case TypeCallStart:
		return CallStarted{info}, nil
	case TypeStatusUpdate:
		return StatusUpdated{info}, nil
	case TypeTranscript:
		ev := TranscriptReceived{CallInfo: info}
		if env.Transcript != nil {
			ev.Role = env.Transcript.Role
			ev.Text = env.Transcript.Text
		}
		return ev, nil
	case TypeFunctionCall:
		ev := FunctionCalled{CallInfo: info}
		if env.FunctionCall != nil {
			ev.Name = env.FunctionCall.Name
			ev.Parameters = env.FunctionCall.Parameters
		}
		return ev, nil
	case TypeCallEnd:
		return CallEnded{info}, nil
	default:
		return Unhandled{CallInfo: info, RawType: env.Type}, nil
	}
}
