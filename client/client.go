// Package client talks to the upload endpoint over HTTP.
//
// A Client implements board.Uploader and board.Remover, so it can be passed
// straight to Session.Commit:
//
//	c, err := client.New("https://board.example.com", client.WithToken(token))
//	if err != nil { ... }
//	content, err = session.Commit(ctx, content, c)
//
// Requests that fail with a network error, a 5xx, 408 or 429 are retried with
// exponential backoff; a Retry-After header raises the wait.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rbaliyan/board"
	"github.com/rbaliyan/board/retry"
)

// Endpoint paths, relative to the base URL.
const (
	PathUpload         = "upload"
	PathUploadMultiple = "upload/multiple"
)

// Result is one entry of a multi-file upload. Error is set when that file failed.
type Result struct {
	board.UploadResult
	Error string `json:"error,omitempty"`
}

// Client uploads files to the upload endpoint.
type Client struct {
	base   *url.URL
	opts   *options
	logger *slog.Logger
}

var (
	_ board.Uploader   = (*Client)(nil)
	_ board.Remover    = (*Client)(nil)
	_ board.Referencer = (*Client)(nil)
)

// New creates a client for the upload service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	o := newOptions(opts...)
	policy := o.policy
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, err error, wait time.Duration) {
			o.logger.Warn("upload request failed, retrying", "attempt", attempt, "wait", wait, "error", err)
		}
	}
	o.policy = policy
	return &Client{base: u, opts: o, logger: o.logger}, nil
}

// Upload sends f to POST /upload.
func (c *Client) Upload(ctx context.Context, f *board.File) (board.UploadResult, error) {
	var res board.UploadResult
	err := c.do(ctx, http.MethodPost, c.resolve(PathUpload), func() (io.Reader, string, error) {
		return encodeFiles("file", f)
	}, &res)
	if err != nil {
		return board.UploadResult{}, err
	}
	return res, nil
}

// UploadMany sends files in one request to POST /upload/multiple.
// Per-file failures are reported in the results, not as an error.
func (c *Client) UploadMany(ctx context.Context, files ...*board.File) ([]Result, error) {
	var resp struct {
		Files []Result `json:"files"`
	}
	err := c.do(ctx, http.MethodPost, c.resolve(PathUploadMultiple), func() (io.Reader, string, error) {
		return encodeFiles("files", files...)
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// Remove deletes an unreferenced upload by URL. Uploads that are referenced
// or already gone are left alone.
func (c *Client) Remove(ctx context.Context, uploadURL string) error {
	err := c.do(ctx, http.MethodDelete, c.resolve(uploadURL), nil, nil)
	if IsStatus(err, http.StatusNotFound) || IsStatus(err, http.StatusConflict) {
		return nil
	}
	return err
}

// AddRef records that a post uses the upload.
func (c *Client) AddRef(ctx context.Context, uploadURL string) error {
	return c.do(ctx, http.MethodPost, c.resolve(uploadURL)+"/refs", nil, nil)
}

// ReleaseRef releases a reference taken with AddRef. The service deletes the
// upload when no reference remains. Releasing a deleted upload succeeds.
func (c *Client) ReleaseRef(ctx context.Context, uploadURL string) error {
	err := c.do(ctx, http.MethodDelete, c.resolve(uploadURL)+"/refs", nil, nil)
	if IsStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

// resolve turns ref, absolute or relative to the base URL, into a request URL.
func (c *Client) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return c.base.String() + strings.TrimPrefix(ref, "/")
	}
	return c.base.ResolveReference(u).String()
}

// do runs one request under the retry policy. body is called per attempt.
func (c *Client) do(ctx context.Context, method, target string, body func() (io.Reader, string, error), out any) error {
	return retry.Do(ctx, c.opts.policy, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.opts.timeout)
		defer cancel()

		var r io.Reader
		var contentType string
		if body != nil {
			var err error
			if r, contentType, err = body(); err != nil {
				return retry.Permanent(err)
			}
		}
		req, err := http.NewRequestWithContext(ctx, method, target, r)
		if err != nil {
			return retry.Permanent(err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		for k, vs := range c.opts.headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if c.opts.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.opts.token)
		}

		resp, err := c.opts.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return statusError(resp)
		}
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("client: decode response: %w", err))
		}
		return nil
	})
}

func statusError(resp *http.Response) *StatusError {
	se := &StatusError{
		StatusCode: resp.StatusCode,
		retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		se.Message = body.Error
		if se.Message == "" {
			se.Message = body.Detail
		}
	} else {
		se.Message = strings.TrimSpace(string(data))
	}
	return se
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encodeFiles builds a multipart body with each file under field.
func encodeFiles(field string, files ...*board.File) (io.Reader, string, error) {
	if len(files) == 0 {
		return nil, "", errors.New("client: no files")
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(field), quoteEscaper.Replace(f.Name)))
		mimeType := f.MIMEType
		if mimeType == "" {
			mimeType = board.DetectMIMEType(f.Name, f.Data)
		}
		h.Set("Content-Type", mimeType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
