package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client uploads an image to the extraction backend and returns its result.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Logger  *slog.Logger
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Logger:  slog.Default(),
	}
}

// Extract posts the image as multipart field "image" to {BaseURL}/parse.
func (c *Client) Extract(ctx context.Context, filename string, image io.Reader) (*Result, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("extraction: no backend url configured")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("image", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("extraction: create form file: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("extraction: read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("extraction: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/parse", &body)
	if err != nil {
		return nil, fmt.Errorf("extraction: new request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Request-ID", requestID)

	logger := c.logger().With("component", "extraction", "request_id", requestID)
	start := time.Now()

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction: post: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("extraction: read response: %w", err)
	}

	logger.Info("extraction response", "status", resp.StatusCode, "bytes", len(data), "elapsed", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction: backend returned %d: %s", resp.StatusCode, errorMessage(data))
	}

	return Parse(data)
}

// errorMessage pulls the "error" field out of a backend error body, falling
// back to the raw body.
func errorMessage(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
