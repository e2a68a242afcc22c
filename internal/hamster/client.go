// Package hamster is a client for the hamster image-hosting upload API.
// Uploads are multipart/form-data POSTs authenticated with an X-API-Key
// header; responses are JSON with a status_code, a success block and an
// image block. The client tolerates unknown and missing response fields.
package hamster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const uploadPath = "/api/1/upload"

// DefaultBaseURL is the hosted hamster instance. Self-hosted instances are
// selected via the site_url config key.
const DefaultBaseURL = "https://hamster.is"

// ErrorKind classifies an upload failure for the persisted record.
type ErrorKind string

const (
	// KindNetwork covers connection and timeout failures before a response
	// was received.
	KindNetwork ErrorKind = "network"
	// KindAuth covers 401/403-class rejections of the API key.
	KindAuth ErrorKind = "auth"
	// KindAPI covers structured remote failures (invalid file, rate limit).
	KindAPI ErrorKind = "api"
	// KindUnknown covers unparseable or unclassifiable responses.
	KindUnknown ErrorKind = "unknown"
)

// UploadError is the failure type for every unsuccessful upload. Callers
// record it against the file and continue with the next item.
type UploadError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Result is the normalized success payload of one upload.
type Result struct {
	DirectURL   string
	ViewerURL   string
	ThumbURL    string
	DeleteURL   string
	UploadedGMT string
}

// MissingFields lists the expected remote fields that came back empty, for
// warning logs. The upload still counts as a success.
func (r *Result) MissingFields() []string {
	var missing []string
	for name, val := range map[string]string{
		"url":        r.DirectURL,
		"url_short":  r.ViewerURL,
		"thumb_url":  r.ThumbURL,
		"delete_url": r.DeleteURL,
		"date_gmt":   r.UploadedGMT,
	} {
		if val == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// UploadOptions carries the per-file request parameters.
type UploadOptions struct {
	APIKey  string
	AlbumID string // optional, omitted from the form when empty
	Title   string
	NSFW    bool
}

// Client performs uploads against one hamster instance.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient returns a client for the instance at baseURL. An empty baseURL
// selects DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// apiResponse mirrors the subset of the wire schema we rely on. The schema
// is owned by the remote API; everything here is optional.
type apiResponse struct {
	StatusCode int `json:"status_code"`
	Success    struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"success"`
	Image struct {
		URL       string `json:"url"`
		URLShort  string `json:"url_short"`
		DeleteURL string `json:"delete_url"`
		DateGMT   string `json:"date_gmt"`
		Thumb     struct {
			URL string `json:"url"`
		} `json:"thumb"`
	} `json:"image"`
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Upload posts one file to the instance. Any failure is returned as an
// *UploadError carrying its kind; the error never aborts a batch by itself.
func (c *Client) Upload(ctx context.Context, filePath string, opts UploadOptions) (*Result, error) {
	body, contentType, err := buildForm(filePath, opts)
	if err != nil {
		return nil, &UploadError{Kind: KindUnknown, Message: "failed to read source file", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, body)
	if err != nil {
		return nil, &UploadError{Kind: KindUnknown, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-API-Key", opts.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UploadError{Kind: KindNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UploadError{Kind: KindNetwork, Message: "failed to read response", Err: err}
	}

	return parseResponse(resp.StatusCode, raw)
}

// buildForm assembles the multipart body: title, format, nsfw, optional
// album_id, and the file bytes under the "source" field.
func buildForm(filePath string, opts UploadOptions) (*bytes.Buffer, string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"title":  opts.Title,
		"format": "json",
		"nsfw":   "0",
	}
	if opts.NSFW {
		fields["nsfw"] = "1"
	}
	if opts.AlbumID != "" {
		fields["album_id"] = opts.AlbumID
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	part, err := w.CreateFormFile("source", filepath.Base(filePath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to copy file into form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}

func parseResponse(httpStatus int, raw []byte) (*Result, error) {
	var body apiResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		if isAuthStatus(httpStatus) {
			return nil, &UploadError{Kind: KindAuth, Message: fmt.Sprintf("API rejected credentials (HTTP %d)", httpStatus)}
		}
		return nil, &UploadError{Kind: KindUnknown, Message: fmt.Sprintf("invalid JSON response (HTTP %d): %s", httpStatus, snippet(raw))}
	}

	if isAuthStatus(httpStatus) || isAuthStatus(body.StatusCode) {
		msg := body.Error.Message
		if msg == "" {
			msg = fmt.Sprintf("API rejected credentials (HTTP %d)", httpStatus)
		}
		return nil, &UploadError{Kind: KindAuth, Message: msg}
	}

	// The API signals success redundantly; require the pieces the original
	// clients rely on before trusting the image block.
	ok := body.StatusCode == http.StatusOK &&
		body.Success.Code == http.StatusOK &&
		strings.Contains(strings.ToLower(body.Success.Message), "upload") &&
		body.Image.URL != ""
	if !ok {
		msg := body.Error.Message
		if msg == "" {
			msg = fmt.Sprintf("upload rejected (status_code %d)", body.StatusCode)
		}
		return nil, &UploadError{Kind: KindAPI, Message: msg}
	}

	return &Result{
		DirectURL:   body.Image.URL,
		ViewerURL:   body.Image.URLShort,
		ThumbURL:    body.Image.Thumb.URL,
		DeleteURL:   body.Image.DeleteURL,
		UploadedGMT: body.Image.DateGMT,
	}, nil
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

func snippet(raw []byte) string {
	const max = 200
	s := strings.TrimSpace(string(raw))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
