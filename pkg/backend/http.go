package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// Endpoints are paths relative to the service base URL.
type Endpoints struct {
	Record string
	Image  string
	Csv    string
	Health string
}

// DefaultEndpoints match the reference prediction service.
var DefaultEndpoints = Endpoints{
	Record: "/predict-manual",
	Image:  "/api/classify_soil_image",
	Csv:    "/api/upload_soil_data",
	Health: "/health",
}

const maxResponseBytes = 8 << 20

// HTTPClient talks to the prediction service over HTTP.
type HTTPClient struct {
	baseURL   string
	endpoints Endpoints
	client    *http.Client
	logger    *slog.Logger
}

// Options configures an HTTPClient. Empty endpoint paths select the defaults.
type Options struct {
	BaseURL   string
	Endpoints Endpoints
	Timeout   time.Duration
	Logger    *slog.Logger
}

// NewHTTPClient creates a client for the service at opts.BaseURL.
func NewHTTPClient(opts Options) *HTTPClient {
	ep := opts.Endpoints
	if ep.Record == "" {
		ep.Record = DefaultEndpoints.Record
	}
	if ep.Image == "" {
		ep.Image = DefaultEndpoints.Image
	}
	if ep.Csv == "" {
		ep.Csv = DefaultEndpoints.Csv
	}
	if ep.Health == "" {
		ep.Health = DefaultEndpoints.Health
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &HTTPClient{
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
		endpoints: ep,
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With("system", "backend"),
	}
}

// Submit issues exactly one request for req.
func (c *HTTPClient) Submit(ctx context.Context, req Request) (*Result, error) {
	httpReq, err := c.build(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Warn("backend unreachable", "kind", req.Kind, "error", err)
		return nil, &Error{Kind: ErrTransport, Message: MessageUnreachable, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Kind: ErrTransport, Message: MessageUnreachable, StatusCode: resp.StatusCode, Cause: err}
	}

	c.logger.Debug("backend responded",
		"kind", req.Kind,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	return interpret(resp.StatusCode, body)
}

// Health probes the service health endpoint.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.endpoints.Health, nil)
	if err != nil {
		return &Error{Kind: ErrTransport, Message: MessageHealth, Cause: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &Error{Kind: ErrTransport, Message: MessageHealth, Cause: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode >= 300 {
		return &Error{Kind: ErrServerRejected, Message: MessageHealth, StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *HTTPClient) build(ctx context.Context, req Request) (*http.Request, error) {
	switch req.Kind {
	case KindRecord:
		body, err := json.Marshal(req.Fields)
		if err != nil {
			return nil, fmt.Errorf("marshal record: %w", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.endpoints.Record, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, nil
	case KindImage:
		return c.multipart(ctx, c.endpoints.Image, "image", req)
	case KindCsv:
		return c.multipart(ctx, c.endpoints.Csv, "file", req)
	default:
		return nil, fmt.Errorf("unknown request kind %q", req.Kind)
	}
}

func (c *HTTPClient) multipart(ctx context.Context, path, field string, req Request) (*http.Request, error) {
	if req.File == nil {
		return nil, fmt.Errorf("%s request without file", req.Kind)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, req.File.Name))
	contentType := req.File.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := part.Write(req.File.Data); err != nil {
		return nil, fmt.Errorf("copy file data: %w", err)
	}

	for k, v := range req.Fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	return httpReq, nil
}

type errorBody struct {
	Error *string `json:"error"`
}

func interpret(status int, body []byte) (*Result, error) {
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Error != nil {
		kind := ErrServerRejected
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			kind = ErrUnauthorized
		}
		return nil, &Error{Kind: kind, Message: *eb.Error, StatusCode: status}
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return nil, &Error{Kind: ErrUnauthorized, Message: MessageUnauthorized, StatusCode: status}
	case status < 200 || status >= 300:
		return nil, &Error{Kind: ErrServerRejected, Message: MessageRejected, StatusCode: status}
	}

	if !json.Valid(body) {
		body, _ = json.Marshal(string(body))
	}
	return &Result{StatusCode: status, Body: json.RawMessage(body)}, nil
}
