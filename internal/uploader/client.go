package uploader

import (
	"alcyxob/video-uploads/internal/domain"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-2xx response from the video API.
type APIError struct {
	StatusCode int
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	RequestID  string          `json:"requestId"`
	Details    json.RawMessage `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
	if len(e.Details) > 0 && string(e.Details) != "null" {
		msg += " " + string(e.Details)
	}
	if e.RequestID != "" {
		msg += " (request " + e.RequestID + ")"
	}
	return msg
}

// UploadRequest declares an upload to the API.
type UploadRequest struct {
	Filename    string   `json:"filename"`
	ContentType string   `json:"contentType"`
	Size        int64    `json:"size"`
	Duration    *float64 `json:"duration,omitempty"`
	FPS         *float64 `json:"fps,omitempty"`
	Angle       *string  `json:"angle,omitempty"`
}

// SignedUpload is the API's answer to an UploadRequest.
type SignedUpload struct {
	VideoID     string    `json:"videoId"`
	UploadURL   string    `json:"uploadUrl"`
	StorageKey  string    `json:"storageKey"`
	ContentType string    `json:"contentType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ConfirmRequest carries optional hints for confirmation.
type ConfirmRequest struct {
	Duration   *float64          `json:"duration,omitempty"`
	FPS        *float64          `json:"fps,omitempty"`
	Angle      *string           `json:"angle,omitempty"`
	Resolution *string           `json:"resolution,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Confirmation is returned by a successful confirm.
type Confirmation struct {
	VideoID          string             `json:"videoId"`
	Status           domain.VideoStatus `json:"status"`
	ReadURL          string             `json:"readUrl"`
	ReadURLExpiresAt *time.Time         `json:"readUrlExpiresAt,omitempty"`
	ConfirmedAt      *time.Time         `json:"confirmedAt,omitempty"`
}

// VideoPage is one page of a listing.
type VideoPage struct {
	Videos []domain.Video `json:"videos"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// APIClient talks to the /api/v1 video endpoints with a bearer token.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAPIClient(baseURL, token string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

func (c *APIClient) RequestUpload(ctx context.Context, req UploadRequest) (*SignedUpload, error) {
	var out SignedUpload
	if err := c.do(ctx, http.MethodPost, "/api/v1/videos/signed-url", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) Confirm(ctx context.Context, videoID string, req ConfirmRequest) (*Confirmation, error) {
	var out Confirmation
	if err := c.do(ctx, http.MethodPost, "/api/v1/videos/"+url.PathEscape(videoID)+"/confirm", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) GetVideo(ctx context.Context, videoID string) (*domain.Video, error) {
	var out domain.Video
	if err := c.do(ctx, http.MethodGet, "/api/v1/videos/"+url.PathEscape(videoID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) ListVideos(ctx context.Context, limit, offset int, status string) (*VideoPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if status != "" {
		q.Set("status", status)
	}
	path := "/api/v1/videos"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out VideoPage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) DeleteVideo(ctx context.Context, videoID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/videos/"+url.PathEscape(videoID), nil, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: resp.Header.Get("X-Request-ID")}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
			envelope.Error.StatusCode = resp.StatusCode
			if envelope.Error.RequestID == "" {
				envelope.Error.RequestID = apiErr.RequestID
			}
			return envelope.Error
		}
		apiErr.Message = strings.TrimSpace(string(raw))
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
