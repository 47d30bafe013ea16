package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vmunix/reeldl/internal/transport"
)

// ErrStreamEnded is returned by Next when the server closes the stream.
var ErrStreamEnded = errors.New("event stream ended")

const maxEventBytes = 1 << 20

// SSEDialer connects to GET /events/:id as a text/event-stream.
type SSEDialer struct {
	baseURL string
	client  *http.Client
}

// NewSSEDialer creates a dialer. The client must not set a Timeout since
// streams are long-lived; nil uses an instrumented default.
func NewSSEDialer(baseURL string, client *http.Client) *SSEDialer {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &SSEDialer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (d *SSEDialer) Dial(ctx context.Context, jobID string) (Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/events/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, transport.NewNetworkError("connect event stream", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, transport.NewStatusError(resp.StatusCode, "", body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, _ := mime.ParseMediaType(ct); mt != "text/event-stream" {
			_ = resp.Body.Close()
			return nil, transport.NewNetworkError(fmt.Sprintf("unexpected content type %q", ct), nil)
		}
	}

	r := bufio.NewReaderSize(resp.Body, 4096)
	return &sseConn{body: resp.Body, r: r}, nil
}

type sseConn struct {
	body io.ReadCloser
	r    *bufio.Reader
}

// Next returns the data of the next event. Multi-line data fields are joined
// with newlines. Comments and fields other than data are ignored.
func (c *sseConn) Next(ctx context.Context) ([]byte, error) {
	var data []string
	size := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, err := c.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrStreamEnded
			}
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(data) > 0 {
				return []byte(strings.Join(data, "\n")), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}
		value = strings.TrimPrefix(value, " ")
		size += len(value)
		if size > maxEventBytes {
			return nil, fmt.Errorf("event exceeds %d bytes", maxEventBytes)
		}
		data = append(data, value)
	}
}

func (c *sseConn) Close() error {
	return c.body.Close()
}
