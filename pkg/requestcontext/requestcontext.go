// Package requestcontext carries per-request values set by middleware.
package requestcontext

import (
	"context"

	"didgate/pkg/domain"
)

type contextKey int

const (
	keyRequestID contextKey = iota
	keyClientIP
	keyUserAgent
	keyWallet
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID returns the request id, or "" outside a request.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(keyRequestID).(string)
	return v
}

func WithClientMetadata(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, keyClientIP, ip)
	return context.WithValue(ctx, keyUserAgent, userAgent)
}

func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(keyClientIP).(string)
	return v
}

func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(keyUserAgent).(string)
	return v
}

// WithWallet records the connected wallet address.
func WithWallet(ctx context.Context, addr domain.Address) context.Context {
	return context.WithValue(ctx, keyWallet, addr)
}

// Wallet returns the connected wallet, or the nil address when none is connected.
func Wallet(ctx context.Context) domain.Address {
	v, _ := ctx.Value(keyWallet).(domain.Address)
	return v
}
