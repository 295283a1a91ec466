package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"didgate/internal/identity/models"
	"didgate/internal/identity/tracer"
)

const (
	uploadKindBytes = "bytes"
	uploadKindJSON  = "json"
)

var errCircuitOpen = errors.New("pinning endpoint circuit open")

type pinOptions struct {
	CIDVersion int `json:"cidVersion"`
}

type pinMetadata struct {
	Name string `json:"name"`
}

type pinJSONRequest struct {
	Content  any         `json:"pinataContent"`
	Metadata pinMetadata `json:"pinataMetadata"`
	Options  pinOptions  `json:"pinataOptions"`
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// StoreBytes uploads a binary payload and returns its content identifier.
// No retries: a second call uploads again.
func (c *Client) StoreBytes(ctx context.Context, name string, payload []byte) (models.ContentRef, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return "", &Error{Kind: KindRejected, Op: "store bytes", Err: err}
	}
	if _, err := part.Write(payload); err != nil {
		return "", &Error{Kind: KindRejected, Op: "store bytes", Err: err}
	}
	if err := writeJSONField(w, "pinataMetadata", pinMetadata{Name: name}); err != nil {
		return "", &Error{Kind: KindRejected, Op: "store bytes", Err: err}
	}
	if err := writeJSONField(w, "pinataOptions", pinOptions{CIDVersion: 1}); err != nil {
		return "", &Error{Kind: KindRejected, Op: "store bytes", Err: err}
	}
	if err := w.Close(); err != nil {
		return "", &Error{Kind: KindRejected, Op: "store bytes", Err: err}
	}

	return c.pin(ctx, uploadKindBytes, pinFilePath, w.FormDataContentType(), body.Bytes())
}

// StoreJSON uploads document wrapped in the pinning envelope and returns its
// content identifier.
func (c *Client) StoreJSON(ctx context.Context, document any) (models.ContentRef, error) {
	raw, err := json.Marshal(pinJSONRequest{
		Content:  document,
		Metadata: pinMetadata{Name: metadataPinName},
		Options:  pinOptions{CIDVersion: 1},
	})
	if err != nil {
		return "", &Error{Kind: KindRejected, Op: "store json", Err: fmt.Errorf("encode document: %w", err)}
	}
	return c.pin(ctx, uploadKindJSON, pinJSONPath, "application/json", raw)
}

func (c *Client) pin(ctx context.Context, kind, path, contentType string, body []byte) (ref models.ContentRef, err error) {
	op := "store " + kind
	ctx, span := c.tracer.Start(ctx, tracer.SpanUpload,
		tracer.String(tracer.AttrUploadKind, kind),
		tracer.Int(tracer.AttrPayloadBytes, len(body)),
	)
	start := time.Now()
	defer func() {
		span.End(err)
		c.metrics.ObserveUpload(kind, uploadOutcome(err), time.Since(start).Seconds())
	}()

	if c.credential == "" {
		return "", &Error{Kind: KindUnavailable, Op: op, Err: errNoCredential}
	}
	if c.breaker != nil && !c.breaker.Allow() {
		return "", &Error{Kind: KindUnavailable, Op: op, Err: errCircuitOpen}
	}

	if c.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.uploadTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.credential)

	resp, err := c.http.Do(req)
	if err != nil {
		c.recordUpstream(false)
		return "", &Error{Kind: KindUnavailable, Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
	if err != nil {
		c.recordUpstream(false)
		return "", &Error{Kind: KindUnavailable, Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.recordUpstream(resp.StatusCode < 500)
		c.logger.WarnContext(ctx, "content upload rejected",
			"kind", kind,
			"status", resp.StatusCode,
			"body", truncate(string(respBody), 256),
		)
		return "", &Error{Kind: KindRejected, Op: op, Status: resp.StatusCode}
	}
	c.recordUpstream(true)

	var pr pinResponse
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return "", &Error{Kind: KindRejected, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	ref = models.ContentRef(pr.IpfsHash)
	if ref.IsEmpty() {
		return "", &Error{Kind: KindRejected, Op: op, Status: resp.StatusCode, Err: errors.New("response carried no content identifier")}
	}

	span.SetAttributes(tracer.String(tracer.AttrContentRef, ref.Bare()))
	c.logger.InfoContext(ctx, "content uploaded", "kind", kind, "content_ref", ref.Bare(), "bytes", len(body))
	return models.ContentRef(ref.Bare()), nil
}

// recordUpstream feeds the breaker. A 4xx answer means the endpoint is up.
func (c *Client) recordUpstream(healthy bool) {
	if c.breaker == nil {
		return
	}
	if healthy {
		c.breaker.RecordSuccess()
		return
	}
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.Warn("pinning circuit opened", "breaker", c.breaker.Name())
	}
}

func writeJSONField(w *multipart.Writer, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.WriteField(name, string(raw))
}

func uploadOutcome(err error) string {
	if err == nil {
		return "success"
	}
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
