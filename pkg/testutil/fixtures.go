package testutil

import (
	"time"

	"didgate/internal/identity/models"
	"didgate/pkg/domain"
)

// Fixed wallets for deterministic test data.
var (
	Ada = domain.MustParseAddress("0xada0000000000000000000000000000000000ada")
	Bob = domain.MustParseAddress("0xb0b0000000000000000000000000000000000b0b")
)

// Content identifiers in both CID versions.
const (
	MetadataCID = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
	ImageCID    = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
)

// CreatedAt is the creation instant used by Metadata.
var CreatedAt = time.Date(2025, 5, 4, 12, 0, 0, 0, time.UTC)

// Metadata returns an identity document without an image.
func Metadata(name, email string) models.Metadata {
	return models.Metadata{
		Name:      name,
		Email:     email,
		CreatedAt: models.NewTimestamp(CreatedAt),
	}
}

// Pointer returns the registry pointer for cid.
func Pointer(cid string) models.Pointer {
	return models.Pointer(cid)
}
