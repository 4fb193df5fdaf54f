package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"pageviews/internal/domain"
	"pageviews/internal/validation"
)

func (a *App) RecordSingle(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r)
	ev, err := validation.DecodeEvent(r.Body)
	if err != nil {
		a.invalid(w, "single", err)
		return
	}

	counter, err := a.Agg.Increment(r.Context(), ev.Page, ev.Bucket, ev.Count)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "Failed to record page view")
		return
	}
	a.json(w, http.StatusCreated, map[string]any{
		"success":    true,
		"page":       counter.Page,
		"hour":       counter.Bucket.Key(),
		"view_count": counter.ViewCount,
	})
}

func (a *App) RecordMulti(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r)
	batch, err := validation.DecodeBatch(r.Body)
	if err != nil {
		a.invalid(w, "multi", err)
		return
	}

	res, err := a.Batches.ProcessBatch(r.Context(), batch)
	if err != nil {
		var partial *domain.PartialFailureError
		if errors.As(err, &partial) {
			a.json(w, http.StatusInternalServerError, map[string]any{
				"error":   "Failed to record multiple page views",
				"atomic":  false,
				"applied": partial.Applied,
				"failed":  partial.Failed,
			})
			return
		}
		a.error(w, http.StatusInternalServerError, "Failed to record multiple page views")
		return
	}

	updates := make([]counterResponse, 0, len(res.Updates))
	for _, u := range res.Updates {
		updates = append(updates, toCounterResponse(u))
	}
	a.json(w, http.StatusCreated, map[string]any{"success": true, "updates": updates})
}

// GetPageView serves GET /page-views/{page}/{hour} with hour in YYYY-MM-DD_HH form.
func (a *App) GetPageView(w http.ResponseWriter, r *http.Request) {
	page, err := url.PathUnescape(chi.URLParam(r, "page"))
	if err != nil || page == "" {
		a.error(w, http.StatusBadRequest, "Invalid page")
		return
	}
	bucket, err := domain.ParseBucketKey(chi.URLParam(r, "hour"))
	if err != nil {
		a.json(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "expected": "YYYY-MM-DD_HH"})
		return
	}

	counter, err := a.Agg.Get(r.Context(), page, bucket)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "Page view not found")
			return
		}
		a.Logger.Error().Err(err).Str("page", page).Str("hour", bucket.Key()).Msg("failed to read page view")
		a.error(w, http.StatusInternalServerError, "Failed to read page view")
		return
	}
	a.json(w, http.StatusOK, toCounterResponse(counter))
}
