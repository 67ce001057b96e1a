// Package transport implements the HTTP abstraction the Map Interpreter
// drives requests through: a multi-valued header/query request shape,
// string/binary/form/multipart bodies, and content-negotiated response
// decoding, all behind the Fetcher interface so the interpreter never
// touches net/http directly.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mapruntime/client/internal/value"
)

// Values is a multi-valued string map — HTTP headers and query
// parameters both allow repeated keys (an Authorization + a second
// custom header sharing a name, or ?tag=a&tag=b).
type Values map[string][]string

// Set stores a single value, overwriting any existing ones.
func (v Values) Set(key, val string) { v[key] = []string{val} }

// Add appends a value, preserving any existing ones under the key.
func (v Values) Add(key, val string) { v[key] = append(v[key], val) }

// Get returns the first value for key, or "" if absent.
func (v Values) Get(key string) string {
	if vs := v[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// BodyKind discriminates the request body variants 4.C names.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyString
	BodyBinary
	BodyURLEncodedForm
	BodyMultipartForm
)

// FormField is one entry of a URL-encoded or multipart form body. A
// multipart field may be scalar, repeated (Values holds every
// occurrence), or binary with optional filename/MIME.
type FormField struct {
	Name   string
	Values []string
	Binary *value.Binary
}

// RequestBody is the tagged body a Request carries.
type RequestBody struct {
	Kind   BodyKind
	String string
	Binary *value.Binary
	Form   []FormField
}

// Request is the interpreter-facing request shape: method, URL, the
// multi-valued header/query maps, an optional body, and a per-call
// timeout enforced by the caller via context cancellation.
type Request struct {
	Method  string
	URL     string
	Headers Values
	Query   Values
	Body    RequestBody
	Timeout time.Duration
}

// Response is the interpreter-facing response shape. Body is already
// decoded per the content-negotiation precedence in 4.C: parsed JSON
// (value.Variable), raw bytes ([]byte), or UTF-8 text (string).
type Response struct {
	Status     int
	StatusText string
	Headers    Values
	Body       interface{}
}

// Fetcher is the sole HTTP transport capability the rest of the runtime
// depends on — the "HTTP transport (given as an injected capability)"
// boundary from SPEC_FULL.md §1. Implementations must be safe for
// concurrent use, since independent bound contexts share one Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// FailureKind is the closed set of normalized transport failures
// (SPEC_FULL.md §4.C): any transport error this package cannot classify
// collapses to KindAbort rather than leaking a transport-specific type.
type FailureKind string

const (
	KindTimeout FailureKind = "timeout"
	KindDNS     FailureKind = "dns"
	KindReject  FailureKind = "reject"
	KindAbort   FailureKind = "abort"
)

// FetchError wraps a normalized transport failure.
type FetchError struct {
	Kind FailureKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("transport: %s: %s", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// HTTPFetcher is the default Fetcher, backed by net/http.Client.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a Fetcher around client, or a fresh
// *http.Client with no default timeout (per-request timeouts are
// enforced by the caller's context) when client is nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{client: client}
}

// Fetch builds and sends an *http.Request from req, then decodes the
// response body per the precedence rules in SPEC_FULL.md §4.C.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	body, contentType, err := buildBody(req.Body)
	if err != nil {
		return Response{}, &FetchError{Kind: KindAbort, Err: err}
	}

	u, err := buildURL(req.URL, req.Query)
	if err != nil {
		return Response{}, &FetchError{Kind: KindAbort, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return Response{}, &FetchError{Kind: KindAbort, Err: err}
	}

	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return Response{}, classifyError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &FetchError{Kind: KindAbort, Err: err}
	}

	decoded, err := decodeBody(resp.Header.Get("Content-Type"), httpReq.Header.Get("Accept"), raw)
	if err != nil {
		return Response{}, &FetchError{Kind: KindAbort, Err: err}
	}

	headers := make(Values, len(resp.Header))
	for k, vs := range resp.Header {
		headers[k] = append([]string{}, vs...)
	}

	return Response{
		Status:     resp.StatusCode,
		StatusText: resp.Status,
		Headers:    headers,
		Body:       decoded,
	}, nil
}

func buildURL(raw string, query Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func buildBody(b RequestBody) (io.Reader, string, error) {
	switch b.Kind {
	case BodyNone:
		return nil, "", nil
	case BodyString:
		return strings.NewReader(b.String), "application/json", nil
	case BodyBinary:
		if b.Binary == nil {
			return nil, "", errors.New("binary body declared without payload")
		}
		if b.Binary.Stream != nil {
			return b.Binary.Stream, "application/octet-stream", nil
		}
		return bytes.NewReader(b.Binary.Bytes), "application/octet-stream", nil
	case BodyURLEncodedForm:
		vals := url.Values{}
		for _, f := range b.Form {
			for _, v := range f.Values {
				vals.Add(f.Name, v)
			}
		}
		return strings.NewReader(vals.Encode()), "application/x-www-form-urlencoded", nil
	case BodyMultipartForm:
		return buildMultipart(b.Form)
	default:
		return nil, "", fmt.Errorf("unknown body kind %d", b.Kind)
	}
}

func buildMultipart(fields []FormField) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for _, f := range fields {
		if f.Binary != nil {
			filename := f.Binary.Filename
			if filename == "" {
				filename = f.Name
			}
			mimeType := f.Binary.MIME
			if mimeType == "" {
				mimeType = "application/octet-stream"
			}
			part, err := createFormFile(w, f.Name, filename, mimeType)
			if err != nil {
				return nil, "", err
			}
			if f.Binary.Stream != nil {
				if _, err := io.Copy(part, f.Binary.Stream); err != nil {
					return nil, "", err
				}
			} else if _, err := part.Write(f.Binary.Bytes); err != nil {
				return nil, "", err
			}
			continue
		}
		for _, v := range f.Values {
			if err := w.WriteField(f.Name, v); err != nil {
				return nil, "", err
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func createFormFile(w *multipart.Writer, fieldName, filename, mimeType string) (io.Writer, error) {
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="%s"; filename="%s"`, fieldName, filename)}
	h["Content-Type"] = []string{mimeType}
	return w.CreatePart(h)
}

var binaryContentTypePrefixes = []string{"application/octet-stream", "audio/", "video/", "image/"}

func decodeBody(contentType, accept string, raw []byte) (interface{}, error) {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "application/json"), strings.Contains(ct, "application/problem+json"):
		if len(raw) == 0 {
			return nil, nil
		}
		goVal, err := parseJSON(raw)
		if err != nil {
			return nil, err
		}
		return value.CastToVariables(goVal)
	case isBinaryContentType(ct) || strings.Contains(strings.ToLower(accept), "octet-stream"):
		return raw, nil
	default:
		return string(raw), nil
	}
}

func isBinaryContentType(ct string) bool {
	for _, prefix := range binaryContentTypePrefixes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

// classifyError normalizes a net/http transport failure into the closed
// failure-kind set 4.C names: timeout, dns, reject, abort (catch-all).
func classifyError(err error) *FetchError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: KindTimeout, Err: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &FetchError{Kind: KindDNS, Err: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return &FetchError{Kind: KindReject, Err: err}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, Err: err}
	}

	return &FetchError{Kind: KindAbort, Err: err}
}
