package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	storagev1 "google.golang.org/api/storage/v1"
)

// defaultJSONAPIBase is the GCS JSON API root used when HTTPTransport.BaseURL
// is unset. Object metadata is fetched with alt=json, object bytes with
// alt=media — the "HTTP/JSON" wire protocol named in spec §1 and §6.
const defaultJSONAPIBase = "https://storage.googleapis.com/storage/v1"

// HTTPTransport is the concrete C2 adapter grounded in the teacher's
// net/http Range-GET client, generalized to the Transport contract and to
// decoding storagev1.Object-shaped JSON metadata responses (matching
// google.golang.org/api/storage/v1, the library the wider corpus's GCS-facing
// code already imports for this exact resource shape).
type HTTPTransport struct {
	// Client issues requests. Shared and reused across calls, per the
	// teacher's pattern of threading one *http.Client through rather than
	// dialing per request.
	Client *http.Client

	// BaseURL overrides the JSON API root, primarily for tests pointed at an
	// httptest.Server.
	BaseURL string
}

// NewHTTPTransport returns an HTTPTransport using client, or http.DefaultClient
// if client is nil.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{Client: client}
}

var _ Transport = (*HTTPTransport)(nil)

func (t *HTTPTransport) base() string {
	if t.BaseURL != "" {
		return t.BaseURL
	}
	return defaultJSONAPIBase
}

func (t *HTTPTransport) objectURL(obj Object, alt string) string {
	u := fmt.Sprintf("%s/b/%s/o/%s", t.base(), url.PathEscape(obj.Bucket), url.PathEscape(obj.Name))
	v := url.Values{}
	v.Set("alt", alt)
	if obj.Generation > 0 {
		v.Set("generation", strconv.FormatInt(obj.Generation, 10))
	}
	return u + "?" + v.Encode()
}

// FetchMetadata implements Transport.
func (t *HTTPTransport) FetchMetadata(ctx context.Context, obj Object) (Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.objectURL(obj, "json"), nil)
	if err != nil {
		return Metadata{}, err
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %s", ErrTransient, err)
	}
	defer resp.Body.Close()

	if kind := statusToError(resp.StatusCode); kind != nil {
		return Metadata{}, withBody(kind, resp)
	}

	var decoded storagev1.Object
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Metadata{}, fmt.Errorf("%w: decoding object metadata: %s", ErrFatal, err)
	}

	return Metadata{
		Size:            int64(decoded.Size),
		Generation:      decoded.Generation,
		ContentEncoding: decoded.ContentEncoding,
	}, nil
}

// OpenRange implements Transport.
func (t *HTTPTransport) OpenRange(ctx context.Context, obj Object, firstByte, lastByte int64) (RangeStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.objectURL(obj, "media"), nil)
	if err != nil {
		return RangeStream{}, err
	}
	req.Header.Set("Range", rangeHeader(firstByte, lastByte))

	resp, err := t.Client.Do(req)
	if err != nil {
		return RangeStream{}, fmt.Errorf("%w: %s", ErrTransient, err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		// success
	default:
		defer resp.Body.Close()
		kind := statusToError(resp.StatusCode)
		if kind == nil {
			kind = ErrFatal
		}
		return RangeStream{}, withBody(kind, resp)
	}

	actual := firstByte
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if parsed, ok := parseContentRangeFirstByte(cr); ok {
			actual = parsed
		}
	}

	return RangeStream{
		Body:            resp.Body,
		ActualFirstByte: actual,
		ContentEncoding: resp.Header.Get("Content-Encoding"),
	}, nil
}

// rangeHeader builds the Range header value: unbounded ("bytes=N-") when
// lastByte is negative, bounded ("bytes=N-M") otherwise.
func rangeHeader(firstByte, lastByte int64) string {
	if lastByte < 0 {
		return fmt.Sprintf("bytes=%d-", firstByte)
	}
	return fmt.Sprintf("bytes=%d-%d", firstByte, lastByte)
}

// parseContentRangeFirstByte extracts the first byte offset from a
// "bytes <first>-<last>/<total>" Content-Range header value.
func parseContentRangeFirstByte(v string) (int64, bool) {
	v = strings.TrimPrefix(v, "bytes ")
	dash := strings.IndexByte(v, '-')
	if dash <= 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(v[:dash], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// statusToError maps an HTTP status code to the C2 error taxonomy, or nil
// for 2xx success.
func statusToError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return ErrTransient
	default:
		return ErrFatal
	}
}

func withBody(kind error, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if len(body) == 0 {
		return fmt.Errorf("%w: %s", kind, resp.Status)
	}
	return fmt.Errorf("%w: %s: %s", kind, resp.Status, string(body))
}
