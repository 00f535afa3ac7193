package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickspencer/opstrack/internal/store"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// queryInt parses an optional positive integer parameter.
func queryInt(q url.Values, key string) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, badRequest("%s must be a positive integer", key)
	}
	return n, nil
}

// queryOffset parses an optional non-negative offset parameter.
func queryOffset(q url.Values, key string) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badRequest("%s must be a non-negative integer", key)
	}
	return n, nil
}

// queryTime parses an optional RFC3339 timestamp or YYYY-MM-DD date. A bare
// date used as an upper bound covers the whole day.
func queryTime(q url.Values, key string, endOfDay bool) (*time.Time, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	d, err := store.ParseDate(v)
	if err != nil {
		return nil, badRequest("%s must be RFC3339 or YYYY-MM-DD", key)
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return &d, nil
}

type pageParams struct {
	page, size int
	from, to   *time.Time
}

func parsePageParams(q url.Values) (pageParams, error) {
	var p pageParams
	var err error
	if p.page, err = queryInt(q, "page"); err != nil {
		return p, err
	}
	if p.size, err = queryInt(q, "page_size"); err != nil {
		return p, err
	}
	if p.from, err = queryTime(q, "from_date", false); err != nil {
		return p, err
	}
	if p.to, err = queryTime(q, "to_date", true); err != nil {
		return p, err
	}
	if p.from != nil && p.to != nil && p.to.Before(*p.from) {
		return p, badRequest("to_date is before from_date")
	}
	return p, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}
