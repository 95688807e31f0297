// Package handler provides HTTP handlers for the agendaclin push API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// maxBodyBytes bounds request bodies. Subscriptions and events are small.
const maxBodyBytes = 64 << 10

// decodeJSON decodes the request body into dst. An empty body leaves dst
// untouched and reports empty=true.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) (empty bool, err error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}
