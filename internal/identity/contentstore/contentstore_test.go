package contentstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"didgate/internal/identity/metrics"
	"didgate/internal/identity/models"
	"didgate/pkg/platform/circuit"
)

const testCID = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"

// countingGateway serves a fixed response and counts hits.
type countingGateway struct {
	srv  *httptest.Server
	hits atomic.Int32
}

func newGateway(t *testing.T, status int, body string) *countingGateway {
	g := &countingGateway{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.hits.Add(1)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(g.srv.Close)
	return g
}

// deadGateway returns a base URL that refuses connections.
func deadGateway() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url + "/ipfs/"
}

func (g *countingGateway) base() string { return g.srv.URL + "/ipfs/" }

type ContentStoreSuite struct {
	suite.Suite
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func TestContentStoreSuite(t *testing.T) {
	suite.Run(t, new(ContentStoreSuite))
}

func (s *ContentStoreSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
}

func (s *ContentStoreSuite) newClient(cfg Config, opts ...Option) *Client {
	opts = append([]Option{WithLogger(s.logger), WithMetrics(s.metrics)}, opts...)
	c, err := New(cfg, opts...)
	s.Require().NoError(err)
	return c
}

func (s *ContentStoreSuite) TestNew() {
	s.Run("requires at least one gateway", func() {
		_, err := New(Config{})
		s.Require().Error(err)
	})

	s.Run("rejects relative gateway URLs", func() {
		_, err := New(Config{Gateways: []string{"ipfs.io/ipfs"}})
		s.Require().Error(err)
	})
}

func (s *ContentStoreSuite) TestGatewayURLs() {
	c := s.newClient(Config{Gateways: []string{
		"https://gateway.pinata.cloud/ipfs/",
		"https://ipfs.io/ipfs",
	}})

	s.Run("strips scheme prefix and keeps gateway order", func() {
		urls := c.GatewayURLs(models.ContentRef("ipfs://" + testCID))
		s.Equal([]string{
			"https://gateway.pinata.cloud/ipfs/" + testCID,
			"https://ipfs.io/ipfs/" + testCID,
		}, urls)
	})

	s.Run("empty ref yields no URLs", func() {
		s.Empty(c.GatewayURLs(""))
	})
}

func (s *ContentStoreSuite) TestFetchJSON_FallsThroughToThirdGateway() {
	g1 := newGateway(s.T(), http.StatusBadGateway, "upstream down")
	g3 := newGateway(s.T(), http.StatusOK, `{"name":"Carol","email":"carol@x.io"}`)
	c := s.newClient(Config{Gateways: []string{g1.base(), deadGateway(), g3.base()}})

	doc, err := c.FetchJSON(context.Background(), models.ContentRef("ipfs://"+testCID))
	s.Require().NoError(err)
	s.Equal("Carol", doc.Name)
	s.Equal("carol@x.io", doc.Email)
	s.Equal(int32(1), g1.hits.Load())
	s.Equal(int32(1), g3.hits.Load(), "no attempt after the first success")

	host := g1.srv.Listener.Addr().String()
	s.Equal(1.0, testutil.ToFloat64(s.metrics.GatewayAttemptsTotal.WithLabelValues(host, "status")))
}

func (s *ContentStoreSuite) TestFetchJSON_SecondGatewayServesDocument() {
	g1 := newGateway(s.T(), http.StatusNotFound, "")
	g2 := newGateway(s.T(), http.StatusOK, `{"name":"Bob","email":"bob@x.io","createdAt":"2024-03-01T10:00:00.000Z"}`)
	g3 := newGateway(s.T(), http.StatusOK, `{"name":"Mallory","email":"m@x.io"}`)
	c := s.newClient(Config{Gateways: []string{g1.base(), g2.base(), g3.base()}})

	doc, err := c.FetchJSON(context.Background(), models.ContentRef(testCID))
	s.Require().NoError(err)
	s.Equal("Bob", doc.Name)
	s.Equal("bob@x.io", doc.Email)
	s.Equal(2024, doc.CreatedAt.Year())
	s.Equal(int32(0), g3.hits.Load())
}

func (s *ContentStoreSuite) TestFetchJSON_ParseFailureMovesOn() {
	g1 := newGateway(s.T(), http.StatusOK, "<html>rate limited</html>")
	g2 := newGateway(s.T(), http.StatusOK, `{"name":"Dan","email":"dan@x.io"}`)
	c := s.newClient(Config{Gateways: []string{g1.base(), g2.base()}})

	doc, err := c.FetchJSON(context.Background(), models.ContentRef(testCID))
	s.Require().NoError(err)
	s.Equal("Dan", doc.Name)
}

func (s *ContentStoreSuite) TestFetchJSON_Exhausted() {
	g1 := newGateway(s.T(), http.StatusInternalServerError, "")
	g2 := newGateway(s.T(), http.StatusGatewayTimeout, "")
	c := s.newClient(Config{Gateways: []string{g1.base(), g2.base()}})

	_, err := c.FetchJSON(context.Background(), models.ContentRef(testCID))
	s.Require().Error(err)
	s.True(errors.Is(err, ErrContentUnavailable))

	var cerr *Error
	s.Require().True(errors.As(err, &cerr))
	s.Equal(2, cerr.Attempts)

	var gerr *GatewayError
	s.Require().True(errors.As(err, &gerr), "carries the last gateway failure")
	s.Equal(http.StatusGatewayTimeout, gerr.Status)
	s.Equal(FailureStatus, gerr.Category)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.FetchExhaustedTotal.WithLabelValues("json")))
}

func (s *ContentStoreSuite) TestFetchJSON_EmptyRef() {
	g1 := newGateway(s.T(), http.StatusOK, `{}`)
	c := s.newClient(Config{Gateways: []string{g1.base()}})

	_, err := c.FetchJSON(context.Background(), models.ContentRef("ipfs://"))
	s.True(errors.Is(err, ErrContentUnavailable))
	s.Equal(int32(0), g1.hits.Load())
}

func (s *ContentStoreSuite) TestFetchJSON_CancelledContextStops() {
	g1 := newGateway(s.T(), http.StatusOK, `{"name":"x","email":"y"}`)
	c := s.newClient(Config{Gateways: []string{g1.base()}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchJSON(ctx, models.ContentRef(testCID))
	s.Require().Error(err)
	s.True(errors.Is(err, context.Canceled))
	s.Equal(int32(0), g1.hits.Load())
}

func (s *ContentStoreSuite) TestFetchBytes() {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	g1 := newGateway(s.T(), http.StatusNotFound, "")
	g2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/ipfs/"+testCID, r.URL.Path)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer g2.Close()
	c := s.newClient(Config{Gateways: []string{g1.base(), g2.URL + "/ipfs/"}})

	blob, err := c.FetchBytes(context.Background(), models.ContentRef("ipfs://"+testCID))
	s.Require().NoError(err)
	s.Equal(png, blob.Data)
	s.Equal("image/png", blob.ContentType)
	s.Equal(g2.Listener.Addr().String(), blob.Gateway)
}

func (s *ContentStoreSuite) TestStoreBytes() {
	var gotAuth, gotName, gotOptions string
	var gotFile []byte
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal(pinFilePath, r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		if !s.NoError(r.ParseMultipartForm(1 << 20)) {
			return
		}
		f, hdr, err := r.FormFile("file")
		if !s.NoError(err) {
			return
		}
		gotFile, _ = io.ReadAll(f)
		gotName = hdr.Filename
		gotOptions = r.FormValue("pinataOptions")
		_ = json.NewEncoder(w).Encode(map[string]any{"IpfsHash": testCID, "PinSize": 4})
	}))
	defer api.Close()

	c := s.newClient(Config{APIURL: api.URL, Credential: "secret", Gateways: DefaultGateways})
	ref, err := c.StoreBytes(context.Background(), "avatar.png", []byte("data"))
	s.Require().NoError(err)
	s.Equal(models.ContentRef(testCID), ref)
	s.Equal("Bearer secret", gotAuth)
	s.Equal("avatar.png", gotName)
	s.Equal([]byte("data"), gotFile)
	s.JSONEq(`{"cidVersion":1}`, gotOptions)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.UploadsTotal.WithLabelValues("bytes", "success")))
}

func (s *ContentStoreSuite) TestStoreJSON() {
	var envelope map[string]json.RawMessage
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal(pinJSONPath, r.URL.Path)
		s.Equal("application/json", r.Header.Get("Content-Type"))
		s.NoError(json.NewDecoder(r.Body).Decode(&envelope))
		_, _ = io.WriteString(w, `{"IpfsHash":"`+testCID+`"}`)
	}))
	defer api.Close()

	c := s.newClient(Config{APIURL: api.URL, Credential: "secret", Gateways: DefaultGateways})
	ref, err := c.StoreJSON(context.Background(), models.Metadata{Name: "Ada", Email: "ada@x.io"})
	s.Require().NoError(err)
	s.Equal(models.ContentRef(testCID), ref)

	s.JSONEq(`{"name":"Ada","email":"ada@x.io"}`, string(envelope["pinataContent"]))
	s.JSONEq(`{"name":"DID-Metadata"}`, string(envelope["pinataMetadata"]))
	s.JSONEq(`{"cidVersion":1}`, string(envelope["pinataOptions"]))
}

func (s *ContentStoreSuite) TestStore_Failures() {
	s.Run("missing credential is unavailable without a request", func() {
		var hits atomic.Int32
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
		defer api.Close()

		c := s.newClient(Config{APIURL: api.URL, Gateways: DefaultGateways})
		_, err := c.StoreJSON(context.Background(), map[string]string{"name": "x"})
		s.True(errors.Is(err, ErrStorageUnavailable))
		s.Equal(int32(0), hits.Load())
	})

	s.Run("unreachable endpoint is unavailable", func() {
		c := s.newClient(Config{APIURL: deadGateway(), Credential: "secret", Gateways: DefaultGateways})
		_, err := c.StoreBytes(context.Background(), "a.png", []byte("x"))
		s.True(errors.Is(err, ErrStorageUnavailable))
	})

	s.Run("non-2xx is rejected with status", func() {
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid jwt", http.StatusUnauthorized)
		}))
		defer api.Close()

		c := s.newClient(Config{APIURL: api.URL, Credential: "secret", Gateways: DefaultGateways})
		_, err := c.StoreJSON(context.Background(), map[string]string{"name": "x"})
		s.True(errors.Is(err, ErrStorageRejected))
		var cerr *Error
		s.Require().True(errors.As(err, &cerr))
		s.Equal(http.StatusUnauthorized, cerr.Status)
	})

	s.Run("success without an identifier is rejected", func() {
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"PinSize":3}`)
		}))
		defer api.Close()

		c := s.newClient(Config{APIURL: api.URL, Credential: "secret", Gateways: DefaultGateways})
		_, err := c.StoreJSON(context.Background(), map[string]string{"name": "x"})
		s.True(errors.Is(err, ErrStorageRejected))
	})
}

func (s *ContentStoreSuite) TestStore_BreakerFailsFast() {
	var hits atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer api.Close()

	breaker := circuit.New("pinning", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	c := s.newClient(Config{APIURL: api.URL, Credential: "secret", Gateways: DefaultGateways}, WithBreaker(breaker))

	for range 2 {
		_, err := c.StoreJSON(context.Background(), map[string]string{"name": "x"})
		s.True(errors.Is(err, ErrStorageRejected))
	}
	s.Require().True(breaker.IsOpen())

	_, err := c.StoreJSON(context.Background(), map[string]string{"name": "x"})
	s.True(errors.Is(err, ErrStorageUnavailable))
	s.Equal(int32(2), hits.Load())
}

func TestWriteReady(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sign := func(exp time.Time) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
		require.NoError(t, err)
		return tok
	}

	tests := []struct {
		name       string
		credential string
		wantErr    bool
	}{
		{name: "missing credential", credential: "", wantErr: true},
		{name: "opaque api key", credential: "pk_live_123", wantErr: false},
		{name: "unexpired jwt", credential: sign(now.Add(time.Hour)), wantErr: false},
		{name: "expired jwt", credential: sign(now.Add(-time.Minute)), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(Config{Credential: tt.credential, Gateways: DefaultGateways}, WithClock(func() time.Time { return now }))
			require.NoError(t, err)

			err = c.WriteReady()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrMisconfigured))
		})
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := &Error{Kind: KindRejected, Op: "store json", Status: 500}
	assert.True(t, errors.Is(err, ErrStorageRejected))
	assert.False(t, errors.Is(err, ErrStorageUnavailable))
	assert.Equal(t, KindRejected, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
