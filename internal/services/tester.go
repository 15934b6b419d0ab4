package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/imyashkale/mcphub/internal/logger"
	"github.com/imyashkale/mcphub/internal/models"
)

var (
	// ErrTestFailed is returned when an endpoint cannot be tested at all
	ErrTestFailed = errors.New("failed to test MCP")
	// ErrBlockedAddress is returned when an endpoint resolves to an address
	// inside the server's own network
	ErrBlockedAddress = errors.New("endpoint address is not allowed")
)

const (
	// DefaultTestTimeout bounds a single test call
	DefaultTestTimeout   = 15 * time.Second
	maxTestResponseBytes = 256 << 10
)

// Tester exercises a listing's endpoint
type Tester struct {
	client *http.Client
	impl   *mcp.Implementation
}

type testerOptions struct {
	allowPrivate bool
}

// TesterOption configures a Tester
type TesterOption func(*testerOptions)

// WithPrivateAddresses lets the tester reach loopback, private and
// link-local addresses. Only for local development and tests.
func WithPrivateAddresses() TesterOption {
	return func(o *testerOptions) { o.allowPrivate = true }
}

// NewTester creates a tester whose calls give up after timeout. Endpoints
// resolving to non-public addresses are refused unless
// WithPrivateAddresses is given.
func NewTester(timeout time.Duration, version string, opts ...TesterOption) *Tester {
	if timeout <= 0 {
		timeout = DefaultTestTimeout
	}
	var o testerOptions
	for _, opt := range opts {
		opt(&o)
	}

	dialer := &net.Dialer{Timeout: timeout}
	if !o.allowPrivate {
		dialer.Control = refusePrivate
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	// a proxy would dial on our behalf and skip the address check
	transport.Proxy = nil

	return &Tester{
		client: &http.Client{Timeout: timeout, Transport: transport},
		impl:   &mcp.Implementation{Name: "mcphub-tester", Version: version},
	}
}

// refusePrivate runs after DNS resolution, so address is the IP actually dialled
func refusePrivate(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	if !publicAddr(ap.Addr()) {
		logger.WithFields(map[string]interface{}{
			"network": network,
			"address": address,
		}).Warn("Refused to dial non-public endpoint")
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ap.Addr())
	}
	return nil
}

func publicAddr(a netip.Addr) bool {
	a = a.Unmap()
	return a.IsValid() &&
		!a.IsLoopback() &&
		!a.IsPrivate() &&
		!a.IsLinkLocalUnicast() &&
		!a.IsLinkLocalMulticast() &&
		!a.IsInterfaceLocalMulticast() &&
		!a.IsMulticast() &&
		!a.IsUnspecified()
}

// Run validates the endpoint and dispatches to Probe or Echo
func (t *Tester) Run(ctx context.Context, endpoint string, req models.TestServerRequest) (models.TestResult, error) {
	u, err := url.Parse(endpoint)
	if endpoint == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return models.TestResult{}, fmt.Errorf("%w: endpoint %q is not an absolute url", ErrTestFailed, endpoint)
	}
	if req.Probe {
		return t.Probe(ctx, endpoint), nil
	}
	return t.Echo(ctx, endpoint, req.Input), nil
}

// Echo POSTs {"input": input} to endpoint and reports the decoded response
func (t *Tester) Echo(ctx context.Context, endpoint, input string) models.TestResult {
	start := time.Now()
	result := func(r models.TestResult) models.TestResult {
		r.DurationMs = time.Since(start).Milliseconds()
		return r
	}

	body, err := json.Marshal(map[string]string{"input": input})
	if err != nil {
		return result(models.TestResult{Error: err.Error()})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return result(models.TestResult{Error: err.Error()})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"endpoint": endpoint,
			"error":    err.Error(),
		}).Warn("Endpoint test request failed")
		return result(models.TestResult{Error: err.Error()})
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxTestResponseBytes))
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		decoded = string(raw)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ErrTestFailed.Error()
		if m, ok := decoded.(map[string]any); ok {
			if e, ok := m["error"].(string); ok && e != "" {
				msg = e
			}
		}
		return result(models.TestResult{Response: decoded, Error: msg})
	}
	return result(models.TestResult{Success: true, Response: decoded})
}

// Probe performs an MCP handshake over the streamable HTTP transport and
// lists the server's tools.
func (t *Tester) Probe(ctx context.Context, endpoint string) models.TestResult {
	start := time.Now()
	result := func(r models.TestResult) models.TestResult {
		r.DurationMs = time.Since(start).Milliseconds()
		return r
	}

	client := mcp.NewClient(t.impl, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{
		Endpoint:   endpoint,
		HTTPClient: t.client,
	}, nil)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"endpoint": endpoint,
			"error":    err.Error(),
		}).Warn("MCP handshake failed")
		return result(models.TestResult{Error: fmt.Sprintf("mcp handshake failed: %v", err)})
	}
	defer session.Close()

	r := models.TestResult{Success: true}
	if init := session.InitializeResult(); init != nil && init.ServerInfo != nil {
		r.ServerName = init.ServerInfo.Name
		r.ServerVersion = init.ServerInfo.Version
	}

	tools, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		r.Success = false
		r.Error = fmt.Sprintf("list tools failed: %v", err)
		return result(r)
	}
	for _, tool := range tools.Tools {
		r.Tools = append(r.Tools, tool.Name)
	}
	return result(r)
}
