package handler

import (
	"time"

	"didgate/internal/identity/models"
	"didgate/internal/identity/resolution"
)

type viewResponse struct {
	Phase       models.Phase     `json:"phase"`
	Address     string           `json:"address,omitempty"`
	DID         string           `json:"did,omitempty"`
	Pointer     string           `json:"pointer,omitempty"`
	Metadata    *metadataView    `json:"metadata,omitempty"`
	Record      *recordView      `json:"record"`
	Error       string           `json:"error,omitempty"`
	Transitions []transitionView `json:"transitions,omitempty"`
}

type metadataView struct {
	Name        string           `json:"name"`
	Email       string           `json:"email"`
	Description string           `json:"description,omitempty"`
	Image       string           `json:"image,omitempty"`
	ImageURLs   []string         `json:"image_urls,omitempty"`
	CreatedAt   models.Timestamp `json:"created_at"`
}

type recordView struct {
	UpdatedAt   *time.Time `json:"updated_at"`
	Version     uint64     `json:"version"`
	LastUpdater string     `json:"last_updater,omitempty"`
}

type transitionView struct {
	From    models.Phase `json:"from"`
	To      models.Phase `json:"to"`
	Settled bool         `json:"settled"`
	At      time.Time    `json:"at"`
}

func (h *Handler) render(state models.ViewState) viewResponse {
	view := viewResponse{Phase: state.Phase()}
	if addr := models.AddressOf(state); !addr.IsNil() {
		view.Address = addr.String()
		view.DID = addr.DID()
	}

	switch st := state.(type) {
	case models.FetchingMetadata:
		view.Pointer = st.Pointer.String()
		view.Record = renderRecord(st.Record)
	case models.Loaded:
		view.Pointer = st.Pointer.String()
		view.Record = renderRecord(st.Record)
		view.Metadata = &metadataView{
			Name:        st.Metadata.Name,
			Email:       st.Metadata.Email,
			Description: st.Metadata.Description,
			CreatedAt:   st.Metadata.CreatedAt,
		}
		if ref := st.Metadata.Image; !ref.IsEmpty() {
			view.Metadata.Image = ref.URI()
			view.Metadata.ImageURLs = h.content.GatewayURLs(ref)
		}
	case models.Failed:
		if st.Err != nil {
			view.Error = st.Err.Error()
		}
	}
	return view
}

func renderRecord(rec *models.Record) *recordView {
	if rec == nil {
		return nil
	}
	out := &recordView{Version: rec.Version}
	if !rec.UpdatedAt.IsZero() {
		at := rec.UpdatedAt.UTC()
		out.UpdatedAt = &at
	}
	if !rec.LastUpdater.IsNil() {
		out.LastUpdater = rec.LastUpdater.String()
	}
	return out
}

func renderTransitions(trs []resolution.Transition) []transitionView {
	out := make([]transitionView, 0, len(trs))
	for _, tr := range trs {
		out = append(out, transitionView{
			From:    tr.From.Phase(),
			To:      tr.To.Phase(),
			Settled: tr.Settled,
			At:      tr.At.UTC(),
		})
	}
	return out
}
