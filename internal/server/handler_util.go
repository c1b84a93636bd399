package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cnic-overlay/internal/extraction"
	cnicimage "cnic-overlay/internal/image"
)

var errMissingField = errors.New("missing form field")

func writeJson(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	enc.Encode(v)
}

// writeError writes {"error": "..."}, the shape the extraction backend uses.
func writeError(w http.ResponseWriter, code int, err error) {
	text := http.StatusText(code)

	if err != nil {
		text = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	json.NewEncoder(w).Encode(map[string]string{"error": text})
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError

	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, cnicimage.ErrDecodeFailure):
		return http.StatusUnprocessableEntity
	case errors.Is(err, extraction.ErrInvalidResult), errors.Is(err, errMissingField), errors.Is(err, http.ErrNotMultipart):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// readImage reads the multipart file field "image".
func readImage(r *http.Request) (cnicimage.Source, error) {
	file, header, err := r.FormFile("image")

	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return cnicimage.Source{}, fmt.Errorf("%w: image", errMissingField)
		}

		return cnicimage.Source{}, err
	}

	defer file.Close()

	data, err := io.ReadAll(file)

	if err != nil {
		return cnicimage.Source{}, err
	}

	return cnicimage.BytesSource(header.Filename, data), nil
}

// readResult reads the extraction result from the form value "result", or
// from a file uploaded under the same name.
func readResult(r *http.Request) (*extraction.Result, error) {
	if val := r.FormValue("result"); val != "" {
		return extraction.Parse([]byte(val))
	}

	file, _, err := r.FormFile("result")

	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, fmt.Errorf("%w: result", errMissingField)
		}

		return nil, err
	}

	defer file.Close()

	data, err := io.ReadAll(file)

	if err != nil {
		return nil, err
	}

	return extraction.Parse(data)
}

// readResultBody reads a JSON extraction result from the request body.
func readResultBody(r *http.Request) (*extraction.Result, error) {
	data, err := io.ReadAll(r.Body)

	if err != nil {
		return nil, err
	}

	return extraction.Parse(data)
}
