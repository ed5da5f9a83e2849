package overrideapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/herald/internal/alerting"
)

const maxBodyBytes = 64 << 10

type publishRequest struct {
	Indices  []int    `json:"indices"`
	IDs      []string `json:"ids"`
	DryRun   bool     `json:"dry_run"`
	MarkSeen *bool    `json:"mark_seen"`
}

func (a *API) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(req.Indices) == 0 && len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "select at least one index or id")
		return
	}

	// mark_seen defaults to true so a forced item is not reposted by the
	// next automatic run
	markSeen := req.MarkSeen == nil || *req.MarkSeen

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.Int("herald.selection.size", len(req.Indices)+len(req.IDs)),
		attribute.Bool("herald.force.dry_run", req.DryRun),
	)

	report, err := a.svc.ForcePublish(r.Context(),
		alerting.Selection{Indices: req.Indices, IDs: req.IDs},
		alerting.ForceOptions{DryRun: req.DryRun, MarkSeen: markSeen},
	)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case errors.Is(err, alerting.ErrPublish) && report != nil:
		a.logger.Warn(r.Context(), "manual publish partly failed", "failed", len(report.Failed))
		writeJSON(w, http.StatusBadGateway, report)
	default:
		code, msg := statusFor(err)
		if code >= http.StatusInternalServerError {
			a.logger.Error(r.Context(), err, "manual publish failed")
		}
		writeError(w, code, msg)
	}
}

const recentLimit = 10

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.State(r.Context())
	if err != nil {
		code, msg := statusFor(err)
		if code >= http.StatusInternalServerError {
			a.logger.Error(r.Context(), err, "failed to load seen state")
		}
		writeError(w, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, st.Summarize(recentLimit))
}
