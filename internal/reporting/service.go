package reporting

import (
	"context"
	"errors"

	"call-pipeline/internal/callrequest"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository is the read side of callrequest.Store. Implementations must
// enforce business filtering.
type Repository interface {
	List(ctx context.Context, businessID string, f callrequest.ListFilter) ([]callrequest.CallRequest, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.BusinessID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.List(ctx, req.BusinessID, callrequest.ListFilter{From: req.Range.From, To: req.Range.To})
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{BusinessID: req.BusinessID, Range: req.Range}
	ended := 0
	for _, r := range rows {
		out.TotalCalls++
		switch r.Status {
		case callrequest.StatusCompleted:
			out.CompletedCalls++
		case callrequest.StatusFailed:
			out.FailedCalls++
		case callrequest.StatusInitiated:
			out.InitiatedCalls++
		default:
			out.PendingCalls++
		}
		if r.CallDetailsProcessed {
			out.ProcessedCalls++
		}
		if r.NeedsManualProcessing {
			out.NeedsManualProcessing++
		}
		if len(r.BookingInfo) > 0 {
			out.BookingsCaptured++
			if r.BookingExtracted {
				out.BookingsAuthoritative++
			}
		}
		if r.RecordingURL != "" {
			out.RecordedCalls++
		}
		if r.CallDuration > 0 {
			out.TotalDurationSeconds += r.CallDuration
			ended++
		}
	}
	// average over calls that reported a duration
	if ended > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / float64(ended)
	}
	return out, nil
}

// ManualQueue lists records whose reconciliation gave up, newest first.
func (s *Service) ManualQueue(ctx context.Context, businessID string, limit int) ([]callrequest.CallRequest, error) {
	if businessID == "" {
		return nil, ErrInvalidRequest
	}
	if s.repo == nil {
		return nil, errors.New("reporting: repository not configured")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.List(ctx, businessID, callrequest.ListFilter{NeedsManualProcessing: true, Limit: limit})
}
