package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"didgate/pkg/domain"
)

// SchemeIPFS is the scheme tag written in front of content identifiers embedded
// in metadata documents.
const SchemeIPFS = "ipfs://"

// DefaultDescription is written into metadata documents when the caller gives none.
const DefaultDescription = "Decentralized Identity Document"

// ContentRef is an opaque content identifier, optionally carrying a scheme prefix.
type ContentRef string

// Bare strips the scheme prefix. When the remainder parses as a CID its
// canonical string form is returned; anything else passes through untouched.
func (r ContentRef) Bare() string {
	s := strings.TrimSpace(string(r))
	s = strings.TrimPrefix(s, SchemeIPFS)
	if c, err := cid.Decode(s); err == nil {
		return c.String()
	}
	return s
}

// URI renders the reference with the ipfs:// scheme tag.
func (r ContentRef) URI() string {
	if r.IsEmpty() {
		return ""
	}
	return SchemeIPFS + r.Bare()
}

// IsEmpty reports whether the reference carries no identifier.
func (r ContentRef) IsEmpty() bool {
	return r.Bare() == ""
}

// IsCID reports whether the bare identifier is a well-formed CID.
func (r ContentRef) IsCID() bool {
	_, err := cid.Decode(strings.TrimPrefix(strings.TrimSpace(string(r)), SchemeIPFS))
	return err == nil
}

// Pointer is the registry value naming an identity's metadata document.
// Pointers are replaced wholesale on update, never edited.
type Pointer string

// IsAbsent reports whether p is the registry's "no identity" sentinel: empty,
// whitespace, or an all-zero hex word as returned by some ledgers for unset
// storage.
func (p Pointer) IsAbsent() bool {
	s := strings.TrimSpace(string(p))
	if s == "" {
		return true
	}
	if !strings.HasPrefix(s, "0x") {
		return false
	}
	return strings.Trim(s[2:], "0") == ""
}

// Ref converts the pointer into a content reference for the content store.
func (p Pointer) Ref() ContentRef { return ContentRef(p) }

func (p Pointer) String() string { return string(p) }

// Record is the richer registry entry for an owner.
type Record struct {
	Pointer     Pointer
	UpdatedAt   time.Time
	Version     uint64
	LastUpdater domain.Address
}

// Metadata is the JSON document an identity pointer addresses.
type Metadata struct {
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Image       ContentRef `json:"image,omitempty"`
	Description string     `json:"description,omitempty"`
	CreatedAt   Timestamp  `json:"createdAt,omitzero"`
}

// Timestamp is an RFC 3339 instant that tolerates malformed input: a
// document with an unreadable createdAt still renders, with the time unknown.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t, truncated to millisecond precision like the documents
// written by the browser client.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

// MarshalJSON renders the zero value as null.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts RFC 3339 strings; anything else yields the zero value.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t.Time = time.Time{}
		return nil
	}
	t.Time = parsed
	return nil
}

// Asset is an optional binary payload attached to a publication.
type Asset struct {
	Filename    string
	ContentType string
	Data        []byte
}
