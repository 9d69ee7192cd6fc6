package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"

	"go.uber.org/zap"

	"orgmedia/internal/media"
	"orgmedia/internal/model"
)

// Request is one multipart POST carrying Files under the form field Field.
type Request struct {
	Path  string
	Field string
	Files []model.UploadCandidate
}

// Transport sends upload requests. onProgress receives the cumulative number
// of file bytes sent; it is never called after UploadMedia returns. The
// returned body is the decoded JSON response.
type Transport interface {
	UploadMedia(ctx context.Context, req Request, onProgress func(sent int64)) (interface{}, error)
}

const maxResponseBytes = 16 << 20

// HTTPTransport implements Transport over net/http with a streamed
// multipart body.
type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
	log     *zap.Logger
}

// TransportOption configures an HTTPTransport
type TransportOption func(*HTTPTransport)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *HTTPTransport) { t.client = c }
}

// WithToken sends token as a Bearer credential.
func WithToken(token string) TransportOption {
	return func(t *HTTPTransport) { t.token = token }
}

// NewHTTPTransport creates a transport posting to baseURL.
func NewHTTPTransport(baseURL string, log *zap.Logger, opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		log:     log,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// UploadMedia streams req as multipart/form-data.
func (t *HTTPTransport) UploadMedia(ctx context.Context, req Request, onProgress func(sent int64)) (interface{}, error) {
	if onProgress == nil {
		onProgress = func(int64) {}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	var writeErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		writeErr = writeParts(mw, req, onProgress)
		if writeErr == nil {
			writeErr = mw.Close()
		}
		pw.CloseWithError(writeErr)
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+req.Path, pr)
	if err != nil {
		pr.Close()
		<-done
		return nil, &TransportError{Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")
	if t.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(httpReq)
	// Unblock the writer if the server answered before reading everything.
	pr.Close()
	<-done
	if err != nil {
		if writeErr != nil && !errors.Is(writeErr, io.ErrClosedPipe) {
			return nil, classifyTransport(ctx, writeErr)
		}
		return nil, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if warnings := resp.Header.Get("X-Upload-Warnings"); warnings != "" {
		t.log.Warn("Server accepted upload with warnings",
			zap.String("path", req.Path),
			zap.String("warnings", warnings))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransport(ctx, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServerError{
			StatusCode: resp.StatusCode,
			Message:    serverMessage(data),
			Body:       truncate(string(data), 512),
		}
	}

	body, err := media.DecodeBody(bytes.NewReader(data))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return body, nil
}

func writeParts(mw *multipart.Writer, req Request, onProgress func(int64)) error {
	counter := &countingWriter{onProgress: onProgress}
	for _, f := range req.Files {
		if f.Open == nil {
			return fmt.Errorf("open %s: no content", f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", f.Name, err)
		}

		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(req.Field), escapeQuotes(f.Name)))
		h.Set("Content-Type", contentType)

		part, err := mw.CreatePart(h)
		if err != nil {
			rc.Close()
			return err
		}
		counter.w = part
		_, err = io.Copy(counter, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("send %s: %w", f.Name, err)
		}
	}
	return nil
}

type countingWriter struct {
	w          io.Writer
	sent       int64
	onProgress func(int64)
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.sent += int64(n)
		c.onProgress(c.sent)
	}
	return n, err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func classifyTransport(ctx context.Context, err error) error {
	var netErr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout())
	return &TransportError{Timeout: timeout, Err: err}
}

// serverMessage extracts an explanation from a JSON error body. A detail
// accompanying a message is appended to it.
func serverMessage(data []byte) string {
	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	str := func(key string) string {
		s, _ := body[key].(string)
		return strings.TrimSpace(s)
	}
	msg, detail := str("message"), str("detail")
	switch {
	case msg != "" && detail != "" && detail != msg:
		return msg + ": " + detail
	case msg != "":
		return msg
	case detail != "":
		return detail
	}
	return str("error")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
