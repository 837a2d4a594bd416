package connection

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/respkv/internal/infra/buildinfo"
)

// DefaultRequestTimeout bounds admin calls other than downloads.
const DefaultRequestTimeout = 30 * time.Second

// APIError is an error envelope returned by the admin API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("admin request failed with status %d", e.Status)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// AdminClient talks to the admin HTTP API.
type AdminClient struct {
	baseURL string
	client  *http.Client
}

// NewAdminClient creates a client for server, which may omit the scheme.
// A non-nil tlsConfig selects https.
func NewAdminClient(server string, tlsConfig *tls.Config) *AdminClient {
	baseURL := strings.TrimRight(server, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		if tlsConfig != nil {
			baseURL = "https://" + baseURL
		} else {
			baseURL = "http://" + baseURL
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	return &AdminClient{
		baseURL: baseURL,
		client: &http.Client{
			Transport: transport,
			// No client timeout: downloads are bounded by the context.
		},
	}
}

// BaseURL returns the base URL of the client.
func (c *AdminClient) BaseURL() string {
	return c.baseURL
}

// Get performs a GET request.
func (c *AdminClient) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with an optional JSON body.
func (c *AdminClient) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *AdminClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "respkv-cli/"+buildinfo.Version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req)
}

// GetJSON fetches path and decodes the envelope's data into target.
func (c *AdminClient) GetJSON(ctx context.Context, path string, target any) error {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	return ParseResponse(resp, target)
}

// PostJSON posts body to path and decodes the envelope's data into target.
func (c *AdminClient) PostJSON(ctx context.Context, path string, body, target any) error {
	resp, err := c.Post(ctx, path, body)
	if err != nil {
		return err
	}
	return ParseResponse(resp, target)
}

// Download streams the body of a GET into w. It returns the response so
// the caller can read headers; the body is already drained and closed.
// progress, when set, is called once with the expected size before copying.
func (c *AdminClient) Download(ctx context.Context, path string, w io.Writer, progress func(total int64) io.Writer) (*http.Response, int64, error) {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return resp, 0, decodeError(resp)
	}

	var src io.Reader = resp.Body
	if progress != nil {
		if pw := progress(resp.ContentLength); pw != nil {
			src = io.TeeReader(resp.Body, pw)
		}
	}
	n, err := io.Copy(w, src)
	if err != nil {
		return resp, n, fmt.Errorf("download: %w", err)
	}
	return resp, n, nil
}

type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// ParseResponse decodes an admin API envelope. The data member is decoded
// into target when target is non-nil.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if target != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return fmt.Errorf("parse response data: %w", err)
		}
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil {
		apiErr.Code = env.Code
		apiErr.Message = env.Message
	}
	return apiErr
}
