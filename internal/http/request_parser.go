// Package http serves the fintrack REST API.
//
// This file holds the helpers that turn path and query parameters into
// typed values. Every parse failure is a core.ValidationError, so handlers
// can pass it straight to writeError.
package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// parseID reads the {id} path segment.
func parseID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.PathValue("id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Invalid("id", "must be a positive integer")
	}
	return id, nil
}

// parseOptionalInt returns ok=false when key is absent or blank.
func parseOptionalInt(query url.Values, key string) (value int, ok bool, err error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, core.Invalid(key, "must be an integer")
	}
	return n, true, nil
}

func parseRequiredInt(query url.Values, key string) (int, error) {
	n, ok, err := parseOptionalInt(query, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, core.Invalid(key, "is required")
	}
	return n, nil
}

// parseBool accepts the strconv.ParseBool spellings; anything else is false.
func parseBool(query url.Values, key string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(query.Get(key)))
	return err == nil && b
}

func parseOptionalDate(query url.Values, key string) (*core.Date, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return nil, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return nil, core.Invalid(key, "must be YYYY-MM-DD")
	}
	return &d, nil
}

// parseDateRange reads start_date and end_date; either may be omitted.
func parseDateRange(query url.Values) (core.DateRange, error) {
	start, err := parseOptionalDate(query, "start_date")
	if err != nil {
		return core.DateRange{}, err
	}
	end, err := parseOptionalDate(query, "end_date")
	if err != nil {
		return core.DateRange{}, err
	}
	return core.DateRange{Start: start, End: end}, nil
}

// parseTransactionFilter reads the list filters of GET /api/transactions.
// Limits are clamped by the service.
func parseTransactionFilter(query url.Values) (storage.TransactionFilter, error) {
	var f storage.TransactionFilter

	if v := strings.TrimSpace(query.Get("type")); v != "" {
		f.Type = core.TransactionType(strings.ToLower(v))
	}

	if v := strings.TrimSpace(query.Get("category_id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return f, core.Invalid("category_id", "must be a positive integer")
		}
		f.CategoryID = &id
	}

	rng, err := parseDateRange(query)
	if err != nil {
		return f, err
	}
	f.Range = rng

	if n, ok, err := parseOptionalInt(query, "limit"); err != nil {
		return f, err
	} else if ok {
		f.Limit = n
	}
	if n, ok, err := parseOptionalInt(query, "offset"); err != nil {
		return f, err
	} else if ok {
		f.Offset = n
	}
	return f, nil
}
