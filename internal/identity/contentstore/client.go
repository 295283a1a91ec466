// Package contentstore talks to content-addressed storage: uploads go through
// a pinning API, reads go through an ordered list of public gateways.
package contentstore

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"didgate/internal/identity/metrics"
	"didgate/internal/identity/models"
	"didgate/internal/identity/tracer"
	"didgate/pkg/platform/circuit"
)

const (
	DefaultAPIURL       = "https://api.pinata.cloud"
	DefaultFetchTimeout = 15 * time.Second

	pinFilePath = "/pinning/pinFileToIPFS"
	pinJSONPath = "/pinning/pinJSONToIPFS"

	// metadataPinName labels every metadata document in the pinning dashboard.
	metadataPinName = "DID-Metadata"

	maxJSONBody  = 1 << 20
	maxBytesBody = 32 << 20
)

// DefaultGateways is the read order used when none is configured.
var DefaultGateways = []string{
	"https://gateway.pinata.cloud/ipfs/",
	"https://ipfs.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
}

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client.
type Config struct {
	// APIURL is the pinning API base URL.
	APIURL string
	// Credential is the bearer token for uploads. Reads need none.
	Credential string
	// Gateways are read in order; the first success wins.
	Gateways []string
	// FetchTimeout bounds a single gateway attempt. Zero leaves it to the caller's context.
	FetchTimeout time.Duration
	// UploadTimeout bounds a single upload. Zero leaves it to the caller's context.
	UploadTimeout time.Duration
	HTTPClient    HTTPDoer
}

// Client stores and fetches identity content.
type Client struct {
	apiURL        string
	credential    string
	gateways      []gateway
	fetchTimeout  time.Duration
	uploadTimeout time.Duration
	http          HTTPDoer
	breaker       *circuit.Breaker
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        tracer.Tracer
	now           func() time.Time
}

type gateway struct {
	base  string
	label string
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// WithBreaker guards the pinning endpoint. While the breaker is open uploads
// fail fast with KindUnavailable.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// WithClock overrides the time source used for credential expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a content store client. At least one gateway is required.
func New(cfg Config, opts ...Option) (*Client, error) {
	gws := cfg.Gateways
	if len(gws) == 0 {
		return nil, fmt.Errorf("content store: at least one gateway is required")
	}

	c := &Client{
		apiURL:        strings.TrimRight(cfg.APIURL, "/"),
		credential:    strings.TrimSpace(cfg.Credential),
		fetchTimeout:  cfg.FetchTimeout,
		uploadTimeout: cfg.UploadTimeout,
		http:          cfg.HTTPClient,
		tracer:        tracer.NewNoop(),
		logger:        slog.Default(),
		now:           time.Now,
	}
	if c.apiURL == "" {
		c.apiURL = DefaultAPIURL
	}
	if c.http == nil {
		c.http = &http.Client{}
	}

	for _, raw := range gws {
		raw = strings.TrimSpace(raw)
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("content store: invalid gateway %q", raw)
		}
		c.gateways = append(c.gateways, gateway{
			base:  strings.TrimRight(raw, "/") + "/",
			label: u.Host,
		})
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GatewayURLs builds one retrieval URL per configured gateway, in order,
// with any scheme prefix stripped from ref.
func (c *Client) GatewayURLs(ref models.ContentRef) []string {
	bare := ref.Bare()
	if bare == "" {
		return nil
	}
	urls := make([]string, 0, len(c.gateways))
	for _, g := range c.gateways {
		urls = append(urls, g.base+bare)
	}
	return urls
}

// Gateways returns the configured gateway base URLs in read order.
func (c *Client) Gateways() []string {
	out := make([]string, 0, len(c.gateways))
	for _, g := range c.gateways {
		out = append(out, g.base)
	}
	return out
}
