// Package handler exposes identity publication and resolution over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"didgate/internal/identity/contentstore"
	"didgate/internal/identity/models"
	"didgate/internal/identity/publication"
	"didgate/internal/identity/resolution"
	"didgate/internal/platform/privacy"
	"didgate/pkg/domain"
	dErrors "didgate/pkg/domain-errors"
	"didgate/pkg/platform/httputil"
	"didgate/pkg/platform/middleware/wallet"
	"didgate/pkg/platform/validation"
	"didgate/pkg/requestcontext"
)

// Publisher runs publications for the connected wallet.
type Publisher interface {
	Publish(ctx context.Context, in publication.Input) (*publication.Outcome, error)
	Clear(ctx context.Context, caller domain.Address) (*publication.ClearOutcome, error)
}

// Resolver resolves an address to a settled view state.
type Resolver interface {
	Resolve(ctx context.Context, addr domain.Address) (*resolution.Result, error)
}

// ContentReader serves stored content and its public gateway links.
type ContentReader interface {
	FetchBytes(ctx context.Context, ref models.ContentRef) (*contentstore.Blob, error)
	GatewayURLs(ref models.ContentRef) []string
}

// Handler wires identity endpoints to the pipelines.
type Handler struct {
	publisher     Publisher
	resolver      Resolver
	content       ContentReader
	logger        *slog.Logger
	maxImageBytes int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMaxImageBytes bounds the accepted image upload.
func WithMaxImageBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxImageBytes = n
		}
	}
}

// New constructs an identity handler.
func New(publisher Publisher, resolver Resolver, content ContentReader, opts ...Option) *Handler {
	h := &Handler{
		publisher:     publisher,
		resolver:      resolver,
		content:       content,
		logger:        slog.Default(),
		maxImageBytes: validation.MaxImageBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts identity endpoints on the router. Mutations require a
// connected wallet; Connect must run earlier in the chain.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(wallet.Require(h.logger))
		r.Post("/identities", h.HandleMint)
		r.Delete("/identities", h.HandleClear)
	})
	r.Get("/identities/{address}", h.HandleResolve)
	r.Get("/identities/{address}/image", h.HandleImage)
}

// mintForm holds the text fields of a mint request.
type mintForm struct {
	Name        string
	Email       string
	Description string
}

func (f *mintForm) Normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.TrimSpace(f.Email)
	f.Description = strings.TrimSpace(f.Description)
}

// Validate rejects oversized fields before any upload. Content rules are
// enforced by the publication pipeline.
func (f *mintForm) Validate() error {
	if err := validation.CheckStringLength("name", f.Name, validation.MaxNameLength); err != nil {
		return err
	}
	if err := validation.CheckStringLength("email", f.Email, validation.MaxEmailLength); err != nil {
		return err
	}
	return validation.CheckStringLength("description", f.Description, validation.MaxDescriptionLength)
}

type mintResponse struct {
	Address      string `json:"address"`
	DID          string `json:"did"`
	Pointer      string `json:"pointer"`
	Image        string `json:"image,omitempty"`
	SubmissionID string `json:"submission_id"`
	Block        uint64 `json:"block,omitempty"`
	Version      uint64 `json:"version,omitempty"`
}

type clearResponse struct {
	Address      string `json:"address"`
	SubmissionID string `json:"submission_id"`
	Cleared      bool   `json:"cleared"`
}

// HandleMint handles POST /identities.
func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller := requestcontext.Wallet(ctx)
	if caller.IsNil() {
		httputil.WriteError(w, toDomainError(publication.ErrNotConnected))
		return
	}

	if !httputil.ParseMultipart(w, r, h.maxImageBytes, h.logger) {
		return
	}
	form := &mintForm{
		Name:        r.FormValue("name"),
		Email:       r.FormValue("email"),
		Description: r.FormValue("description"),
	}
	if err := httputil.PrepareRequest(form); err != nil {
		httputil.WriteError(w, err)
		return
	}

	image, err := httputil.ReadFormFile(r, "image", h.maxImageBytes)
	if err != nil {
		httputil.WriteError(w, dErrors.WithDetail(err, "field", "image"))
		return
	}

	in := publication.Input{
		Caller:      caller,
		Name:        form.Name,
		Email:       form.Email,
		Description: form.Description,
	}
	if image != nil {
		in.Asset = &models.Asset{Filename: image.Filename, ContentType: image.ContentType, Data: image.Data}
	}

	out, err := h.publisher.Publish(ctx, in)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to publish identity",
			"request_id", requestID,
			"wallet", caller.Short(),
			"email", privacy.RedactEmail(form.Email),
			"stage", publication.StageOf(err),
			"error", err,
		)
		httputil.WriteError(w, toDomainError(err))
		return
	}

	resp := mintResponse{
		Address:      out.Owner.String(),
		DID:          out.Owner.DID(),
		Pointer:      out.MetadataRef.URI(),
		SubmissionID: out.Submission.ID,
		Block:        out.Confirmation.Block,
		Version:      out.Confirmation.Version,
	}
	if !out.ImageRef.IsEmpty() {
		resp.Image = out.ImageRef.URI()
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

// HandleClear handles DELETE /identities.
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller := requestcontext.Wallet(ctx)
	if caller.IsNil() {
		httputil.WriteError(w, toDomainError(publication.ErrNotConnected))
		return
	}

	out, err := h.publisher.Clear(ctx, caller)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to clear identity",
			"request_id", requestcontext.RequestID(ctx),
			"wallet", caller.Short(),
			"error", err,
		)
		httputil.WriteError(w, toDomainError(err))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, clearResponse{
		Address:      out.Owner.String(),
		SubmissionID: out.Submission.ID,
		Cleared:      true,
	})
}

// HandleResolve handles GET /identities/{address}. NotFound and Failed are
// reported as states with 200; only a malformed address or an abandoned
// request produce an error status.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, ok := h.addressParam(w, r)
	if !ok {
		return
	}

	res, err := h.resolver.Resolve(ctx, addr)
	if err != nil {
		h.logger.WarnContext(ctx, "resolution abandoned",
			"request_id", requestcontext.RequestID(ctx),
			"address", addr.Short(),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeTimeout, "resolution did not settle"))
		return
	}

	view := h.render(res.State)
	if r.URL.Query().Get("trace") == "1" {
		view.Transitions = renderTransitions(res.Transitions)
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleImage handles GET /identities/{address}/image.
func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	addr, ok := h.addressParam(w, r)
	if !ok {
		return
	}

	res, err := h.resolver.Resolve(ctx, addr)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeTimeout, "resolution did not settle"))
		return
	}

	switch st := res.State.(type) {
	case models.Loaded:
		if st.Metadata.Image.IsEmpty() {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "identity has no image"))
			return
		}
		blob, err := h.content.FetchBytes(ctx, st.Metadata.Image)
		if err != nil {
			h.logger.WarnContext(ctx, "image unavailable",
				"request_id", requestcontext.RequestID(ctx),
				"address", addr.Short(),
				"error", err,
			)
			httputil.WriteError(w, toDomainError(err))
			return
		}
		contentType := blob.ContentType
		if contentType == "" {
			contentType = http.DetectContentType(blob.Data)
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(blob.Data)
	case models.Failed:
		httputil.WriteError(w, toDomainError(st.Err))
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no identity for "+addr.String()))
	}
}

func (h *Handler) addressParam(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, dErrors.WithDetail(
			dErrors.Wrap(err, dErrors.CodeValidation, "address must be a 0x-prefixed 20-byte hex string"),
			"field", "address",
		))
		return domain.Address{}, false
	}
	return addr, true
}
