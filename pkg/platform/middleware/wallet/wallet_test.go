package wallet

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"didgate/pkg/domain"
	"didgate/pkg/requestcontext"
)

func TestConnect(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantWallet string
	}{
		{name: "no header stays disconnected", wantStatus: http.StatusOK},
		{name: "valid address", header: "0xada0000000000000000000000000000000000ada", wantStatus: http.StatusOK, wantWallet: "0xada0000000000000000000000000000000000ada"},
		{name: "malformed address", header: "0x123", wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got domain.Address
			h := Connect(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = requestcontext.Wallet(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(Header, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantWallet == "" {
				assert.True(t, got.IsNil())
			} else {
				assert.Equal(t, domain.MustParseAddress(tt.wantWallet), got)
			}
		})
	}
}

func TestRequire(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	called := false
	h := Connect(logger)(Require(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/identities", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)

	req := httptest.NewRequest(http.MethodDelete, "/identities", nil)
	req.Header.Set(Header, "0xada0000000000000000000000000000000000ada")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}
