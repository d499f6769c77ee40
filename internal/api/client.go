// Package api uploads finished session recordings to an archive service.
package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/surveyor-hil/asvsim/pkg/core"
)

const (
	healthPath = "/healthcheck"
	uploadPath = "/api/v1/recordings"
)

// StatusError reports an unexpected HTTP status from the archive.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("archive %s: status %d", e.Op, e.Code)
}

type Client struct {
	base   string
	secret string
	http   *http.Client
}

// Option adjusts a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client, which times out after 30s.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL, secret string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		secret: secret,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Healthcheck returns nil when the archive answers 200.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("archive healthcheck: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "healthcheck", Code: resp.StatusCode}
	}
	return nil
}

// Upload posts an exported session file and its metadata as one multipart
// form. The file is streamed, never held in memory.
func (c *Client) Upload(ctx context.Context, path string, meta core.UploadMetadata) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	body, form := io.Pipe()
	mw := multipart.NewWriter(form)
	name := filepath.Base(path)

	written := make(chan error, 1)
	go func() {
		err := c.encode(mw, f, name, meta)
		form.CloseWithError(err)
		written <- err
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+uploadPath, body)
	if err != nil {
		body.Close()
		<-written
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		body.CloseWithError(err)
		<-written
		return fmt.Errorf("archive upload: %w", err)
	}
	defer resp.Body.Close()

	if err := <-written; err != nil {
		return fmt.Errorf("encode upload: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	default:
		return &StatusError{Op: "upload", Code: resp.StatusCode}
	}
}

func (c *Client) encode(mw *multipart.Writer, src io.Reader, name string, meta core.UploadMetadata) error {
	fields := []struct{ key, value string }{
		{"secret", c.secret},
		{"filename", name},
		{"sessionId", meta.SessionID},
		{"startTime", meta.StartTime.UTC().Format(time.RFC3339)},
		{"duration", strconv.FormatFloat(meta.Duration, 'f', 3, 64)},
		{"frames", strconv.Itoa(meta.Frames)},
		{"tag", meta.Tag},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.key, f.value); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return mw.Close()
}
