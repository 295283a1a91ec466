package contentstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"didgate/internal/identity/models"
	"didgate/internal/identity/tracer"
)

const (
	fetchKindJSON  = "json"
	fetchKindBytes = "bytes"
)

var errEmptyRef = errors.New("empty content reference")

// Blob is binary content served by a gateway.
type Blob struct {
	Data        []byte
	ContentType string
	Gateway     string
}

// FetchJSON retrieves and decodes a metadata document, trying gateways one at
// a time in configured order. A network error, non-2xx status or undecodable
// body moves on to the next gateway. When all fail the error has kind
// KindContentUnavailable and wraps the last gateway's failure.
func (c *Client) FetchJSON(ctx context.Context, ref models.ContentRef) (*models.Metadata, error) {
	var doc models.Metadata
	_, err := c.fetch(ctx, ref, fetchKindJSON, maxJSONBody, func(body []byte, _ string) error {
		var out models.Metadata
		if err := json.Unmarshal(body, &out); err != nil {
			return err
		}
		doc = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FetchBytes retrieves binary content with the same gateway fallback as FetchJSON.
func (c *Client) FetchBytes(ctx context.Context, ref models.ContentRef) (*Blob, error) {
	blob := &Blob{}
	gw, err := c.fetch(ctx, ref, fetchKindBytes, maxBytesBody, func(body []byte, contentType string) error {
		blob.Data = body
		blob.ContentType = contentType
		return nil
	})
	if err != nil {
		return nil, err
	}
	if blob.ContentType == "" {
		blob.ContentType = http.DetectContentType(blob.Data)
	}
	blob.Gateway = gw
	return blob, nil
}

// fetch walks the gateway list sequentially and hands the first 2xx body to
// decode. It returns the label of the gateway that served the content.
func (c *Client) fetch(ctx context.Context, ref models.ContentRef, kind string, limit int64, decode func([]byte, string) error) (served string, err error) {
	bare := ref.Bare()
	ctx, span := c.tracer.Start(ctx, tracer.SpanFetch,
		tracer.String(tracer.AttrContentRef, bare),
	)
	start := time.Now()
	attempts := 0
	defer func() {
		span.SetAttributes(tracer.Int(tracer.AttrAttempts, attempts))
		span.End(err)
		c.metrics.ObserveFetch(kind, time.Since(start).Seconds(), KindOf(err) == KindContentUnavailable && attempts > 0)
	}()

	if bare == "" {
		return "", &Error{Kind: KindContentUnavailable, Op: "fetch " + kind, Err: errEmptyRef}
	}

	var last error
	for _, g := range c.gateways {
		if ctx.Err() != nil {
			return "", fmt.Errorf("fetch %s: %w", bare, ctx.Err())
		}
		attempts++

		gerr := c.attempt(ctx, g, bare, limit, decode)
		if gerr == nil {
			c.metrics.RecordGatewayAttempt(g.label, "success")
			span.SetAttributes(tracer.String(tracer.AttrGateway, g.label))
			return g.label, nil
		}

		c.metrics.RecordGatewayAttempt(g.label, string(gerr.Category))
		span.AddEvent(tracer.EventGatewayFailed,
			tracer.String(tracer.AttrGateway, g.label),
			tracer.String("category", string(gerr.Category)),
		)
		c.logger.DebugContext(ctx, "gateway attempt failed",
			"gateway", g.label,
			"content_ref", bare,
			"category", gerr.Category,
			"error", gerr,
		)
		last = gerr
	}

	if ctx.Err() != nil {
		return "", fmt.Errorf("fetch %s: %w", bare, ctx.Err())
	}
	c.logger.WarnContext(ctx, "content unavailable on all gateways",
		"content_ref", bare,
		"attempts", attempts,
		"error", last,
	)
	return "", &Error{Kind: KindContentUnavailable, Op: "fetch " + kind, Attempts: attempts, Err: last}
}

func (c *Client) attempt(ctx context.Context, g gateway, bare string, limit int64, decode func([]byte, string) error) *GatewayError {
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.base+bare, nil)
	if err != nil {
		return &GatewayError{Gateway: g.label, Category: FailureNetwork, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &GatewayError{Gateway: g.label, Category: FailureTimeout, Err: err}
		}
		return &GatewayError{Gateway: g.label, Category: FailureNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &GatewayError{Gateway: g.label, Category: FailureStatus, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return &GatewayError{Gateway: g.label, Category: FailureNetwork, Err: err}
	}
	if int64(len(body)) > limit {
		return &GatewayError{Gateway: g.label, Category: FailureParse, Err: fmt.Errorf("body exceeds %d bytes", limit)}
	}
	if err := decode(body, resp.Header.Get("Content-Type")); err != nil {
		return &GatewayError{Gateway: g.label, Category: FailureParse, Err: err}
	}
	return nil
}
