package overrideapi

import (
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/herald/internal/alerting"
)

type itemsResponse struct {
	Count int                  `json:"count"`
	Items []alerting.PoolEntry `json:"items"`
}

func (a *API) handleListItems(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("herald.filter.status", f.Status),
		attribute.String("herald.filter.topic", f.Topic),
	)

	entries, err := a.svc.Query(r.Context(), f)
	if err != nil {
		code, msg := statusFor(err)
		if code >= http.StatusInternalServerError {
			a.logger.Error(r.Context(), err, "failed to query item pool")
		}
		writeError(w, code, msg)
		return
	}
	if entries == nil {
		entries = []alerting.PoolEntry{}
	}
	writeJSON(w, http.StatusOK, itemsResponse{Count: len(entries), Items: entries})
}

func (a *API) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("herald.item.id", id))

	entries, err := a.svc.Query(r.Context(), alerting.Filter{})
	if err != nil {
		code, msg := statusFor(err)
		if code >= http.StatusInternalServerError {
			a.logger.Error(r.Context(), err, "failed to query item pool", "id", id)
		}
		writeError(w, code, msg)
		return
	}

	var found []alerting.PoolEntry
	for _, e := range entries {
		if e.Item.ID == id {
			writeJSON(w, http.StatusOK, e)
			return
		}
		if strings.HasPrefix(e.Item.ID, id) {
			found = append(found, e)
		}
	}
	switch len(found) {
	case 0:
		writeError(w, http.StatusNotFound, "not found")
	case 1:
		writeJSON(w, http.StatusOK, found[0])
	default:
		writeError(w, http.StatusConflict, "ambiguous id prefix")
	}
}

func parseFilter(r *http.Request) (alerting.Filter, error) {
	q := r.URL.Query()
	f := alerting.Filter{
		Topic:   q.Get("topic"),
		Keyword: q.Get("keyword"),
		Status:  q.Get("status"),
		Sort:    q.Get("sort"),
	}

	for _, p := range []struct {
		name string
		dst  **int
	}{
		{"min_score", &f.MinScore},
		{"max_score", &f.MaxScore},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, &paramError{name: p.name, value: v}
		}
		*p.dst = &n
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, &paramError{name: "limit", value: v}
		}
		f.Limit = n
	}
	return f, nil
}

type paramError struct {
	name, value string
}

func (e *paramError) Error() string {
	return "invalid " + e.name + ": " + strconv.Quote(e.value)
}
