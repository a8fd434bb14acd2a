package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const maxBodyBytes = 1 << 20

var ErrEmptyBody = errors.New("body must not be empty")

type Envelope map[string]any

func WriteJSON(w http.ResponseWriter, status int, data any) error {
	js, err := json.Marshal(data)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

// ReadJSON decodes a single JSON value from the request body into dst.
// An empty body yields ErrEmptyBody so callers can decide whether it is acceptable.
func ReadJSON(r *http.Request, dst any) error {
	raw, err := ReadBody(r)
	if err != nil {
		return err
	}

	if len(raw) == 0 {
		return ErrEmptyBody
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("body contains badly-formed JSON: %w", err)
	}

	return nil
}

// ReadBody returns the raw request body, capped at 1MB.
func ReadBody(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if len(raw) > maxBodyBytes {
		return nil, fmt.Errorf("body must not be larger than %d bytes", maxBodyBytes)
	}

	return raw, nil
}
