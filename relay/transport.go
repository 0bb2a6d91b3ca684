package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// ErrTransport is returned for any non-200 response or timed-out request,
// the category of error a caller can usefully retry.
var ErrTransport = errors.New("relay: transport error")

// Transport abstracts the HTTP calls a Client makes. HTTP internals are an
// explicit non-goal; this interface is the boundary a caller
// plugs a real client, a test double, or an onion-routed transport into.
type Transport interface {
	Get(ctx context.Context, url string) ([]byte, error)
	PostMultipart(ctx context.Context, url, fieldName string, body []byte) ([]byte, error)
}

// HTTPTransport is the default Transport, a thin wrapper around net/http.
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport returns an HTTPTransport using http.DefaultClient.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{Client: http.DefaultClient}
}

func (t *HTTPTransport) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}

// Get issues an HTTP GET and returns the response body, failing with
// ErrTransport on any non-200 status or transport-level error.
func (t *HTTPTransport) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	resp, err := t.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}
	return body, nil
}

// PostMultipart uploads body as a single multipart form file field named
// fieldName, matching network.py's encode_multipart_formdata usage for
// message upload.
func (t *HTTPTransport) PostMultipart(ctx context.Context, url, fieldName string, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(fieldName, fieldName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if _, err := part.Write(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := t.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}
	return respBody, nil
}
