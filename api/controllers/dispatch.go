package controllers

import (
	"net/http"

	"github.com/angelmondragon/outbound-dispatch/api/middleware"
	"github.com/angelmondragon/outbound-dispatch/api/responses"
	"github.com/angelmondragon/outbound-dispatch/api/validators"
	"github.com/angelmondragon/outbound-dispatch/internal/dispatch"
	pkgerrors "github.com/angelmondragon/outbound-dispatch/pkg/errors"
	"github.com/angelmondragon/outbound-dispatch/pkg/logger"
	"github.com/angelmondragon/outbound-dispatch/pkg/pagination"
)

const (
	maxRequestedByLen = 128
	apiRequester      = "api"
)

// DispatchRunRequest is the body accepted by POST /api/v1/dispatch/runs.
// Zero batch size and concurrency fall back to the configured defaults.
type DispatchRunRequest struct {
	DryRun          bool   `json:"dryRun"`
	BatchSize       int    `json:"batchSize" validate:"gte=0,lte=200"`
	RetryFailedOnly bool   `json:"retryFailedOnly"`
	IncludeFailed   bool   `json:"includeFailed"`
	Force           bool   `json:"force"`
	Concurrency     int    `json:"concurrency" validate:"gte=0,lte=20"`
	RequestedBy     string `json:"requestedBy" validate:"max=128"`
	LogRun          *bool  `json:"logRun"`
}

func (req DispatchRunRequest) toParams(requestID string) dispatch.RunParams {
	requestedBy := validators.SanitizeString(req.RequestedBy, maxRequestedByLen)
	if requestedBy == "" {
		requestedBy = apiRequester
		if requestID != "" {
			requestedBy = apiRequester + ":" + requestID
		}
	}
	params := dispatch.DefaultRunParams(requestedBy)
	params.DryRun = req.DryRun
	params.BatchSize = req.BatchSize
	params.RetryFailedOnly = req.RetryFailedOnly
	params.IncludeFailed = req.IncludeFailed
	params.Force = req.Force
	params.Concurrency = req.Concurrency
	if req.LogRun != nil {
		params.LogRun = *req.LogRun
	}
	return params
}

// DispatchRun triggers one dispatch run and returns its result.
func DispatchRun(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch service unavailable"))
			return
		}

		var body DispatchRunRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := body.toParams(middleware.RequestIDFromContext(r.Context()))
		result, err := svc.Run(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// DispatchStats reports queue depth for operators.
func DispatchStats(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch service unavailable"))
			return
		}
		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// DispatchRecentRuns pages through persisted run summaries, newest first.
func DispatchRecentRuns(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor, err := validators.ParseQueryCursor(r, "cursor")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.RecentRuns(r.Context(), limit, cursor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
