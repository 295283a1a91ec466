// Package wallet reads the connected wallet address from requests.
//
// Wallet cryptography stays with the wallet: this middleware only trusts the
// address header set by the client. Signing happens at the registry backend,
// which refuses addresses it cannot sign for.
package wallet

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"didgate/pkg/domain"
	"didgate/pkg/requestcontext"
)

// Header carries the connected wallet address.
const Header = "X-Wallet-Address"

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// Connect stores the wallet address from the request header in the context.
// A missing header leaves the request disconnected; a malformed one is
// rejected with 400.
func Connect(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(Header))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			addr, err := domain.ParseAddress(raw)
			if err != nil {
				logger.WarnContext(ctx, "malformed wallet address",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusBadRequest, "bad_request", "Malformed "+Header+" header")
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithWallet(ctx, addr)))
		})
	}
}

// Require rejects requests without a connected wallet with 401.
func Require(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.Wallet(ctx).IsNil() {
				logger.WarnContext(ctx, "wallet required",
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "not_connected", "Connect a wallet first")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
