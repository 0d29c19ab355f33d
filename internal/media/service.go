package media

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"teamchat/internal/apperr"
	"teamchat/internal/identity"
)

// Lookup is the repository slice the service consumes.
type Lookup interface {
	ImageByID(ctx context.Context, imageID uuid.UUID) (*ImageRef, error)
	ImagesForMessage(ctx context.Context, messageID uuid.UUID) ([]*ImageRef, error)
}

// Membership re-validates conversation access on every blob read.
// Satisfied by chat.Guard.
type Membership interface {
	IsMember(ctx context.Context, p identity.Principal, conversationID uuid.UUID) (bool, error)
	RequireMember(ctx context.Context, p identity.Principal, conversationID uuid.UUID) error
}

const (
	VariantFull  = "full"
	VariantThumb = "thumb"

	// previewKeyPrefix marks blobs stored by the link-preview engine.
	// They carry no conversation context but still require authentication.
	previewKeyPrefix = "preview/"
)

// UploadTicket is the server half of the two-phase upload: signed locations
// for the pre-compressed full and thumbnail variants of one image.
type UploadTicket struct {
	FullKey        string    `json:"full_key"`
	FullUploadURL  string    `json:"full_upload_url"`
	ThumbKey       string    `json:"thumb_key"`
	ThumbUploadURL string    `json:"thumb_upload_url"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// ImageURLs carries signed retrieval URLs for one attachment.
type ImageURLs struct {
	ImageID  uuid.UUID `json:"image_id"`
	FullURL  string    `json:"full_url"`
	ThumbURL string    `json:"thumb_url"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
}

type Service struct {
	blobs   BlobStore
	lookup  Lookup
	guard   Membership
	signTTL time.Duration
}

func NewService(blobs BlobStore, lookup Lookup, guard Membership, signTTL time.Duration) *Service {
	return &Service{blobs: blobs, lookup: lookup, guard: guard, signTTL: signTTL}
}

// CreateUploadURL hands out signed upload locations for one image destined
// for a conversation the caller belongs to.
func (s *Service) CreateUploadURL(ctx context.Context, p identity.Principal, conversationID uuid.UUID) (*UploadTicket, error) {
	if p.Anonymous() {
		return nil, apperr.Authorization("authentication required")
	}
	if err := s.guard.RequireMember(ctx, p, conversationID); err != nil {
		return nil, err
	}

	id := uuid.New()
	fullKey := fmt.Sprintf("chat/%s/%s/full", conversationID, id)
	thumbKey := fmt.Sprintf("chat/%s/%s/thumb", conversationID, id)

	fullURL, err := s.blobs.SignedUploadURL(fullKey, s.signTTL)
	if err != nil {
		return nil, err
	}
	thumbURL, err := s.blobs.SignedUploadURL(thumbKey, s.signTTL)
	if err != nil {
		return nil, err
	}

	return &UploadTicket{
		FullKey:        fullKey,
		FullUploadURL:  fullURL,
		ThumbKey:       thumbKey,
		ThumbUploadURL: thumbURL,
		ExpiresAt:      time.Now().Add(s.signTTL),
	}, nil
}

// URLsForMessage returns signed retrieval URLs for every image on a message
// the caller may see.
func (s *Service) URLsForMessage(ctx context.Context, p identity.Principal, messageID uuid.UUID) ([]ImageURLs, error) {
	refs, err := s.lookup.ImagesForMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return []ImageURLs{}, nil
	}
	if err := s.guard.RequireMember(ctx, p, refs[0].ConversationID); err != nil {
		return nil, err
	}

	out := make([]ImageURLs, 0, len(refs))
	for _, ref := range refs {
		fullURL, err := s.blobs.SignedGetURL(ref.FullKey, s.signTTL)
		if err != nil {
			return nil, err
		}
		thumbURL, err := s.blobs.SignedGetURL(ref.ThumbKey, s.signTTL)
		if err != nil {
			return nil, err
		}
		out = append(out, ImageURLs{
			ImageID:  ref.ImageID,
			FullURL:  fullURL,
			ThumbURL: thumbURL,
			Width:    ref.Width,
			Height:   ref.Height,
		})
	}
	return out, nil
}

// Open resolves an image attachment to the requested variant's blob after
// re-validating membership through the reverse lookup, then opens it for
// streaming. The authorization error distinguishes 403 from 404 upstream.
func (s *Service) Open(ctx context.Context, p identity.Principal, imageID uuid.UUID, variant string) (io.ReadCloser, string, error) {
	if variant != VariantFull && variant != VariantThumb {
		return nil, "", apperr.Validation("variant must be full or thumb")
	}

	ref, err := s.lookup.ImageByID(ctx, imageID)
	if err != nil {
		return nil, "", err
	}
	ok, err := s.guard.IsMember(ctx, p, ref.ConversationID)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", apperr.Authorization("not a participant of this conversation")
	}

	key := ref.FullKey
	if variant == VariantThumb {
		key = ref.ThumbKey
	}
	return s.blobs.Get(ctx, key)
}

// OpenPreviewBlob serves blobs stored by the link-preview engine. They are
// not tied to a conversation; any authenticated user may read them.
func (s *Service) OpenPreviewBlob(ctx context.Context, p identity.Principal, key string) (io.ReadCloser, string, error) {
	if p.Anonymous() {
		return nil, "", apperr.Authorization("authentication required")
	}
	if !strings.HasPrefix(key, previewKeyPrefix) {
		return nil, "", apperr.NotFound("blob")
	}
	return s.blobs.Get(ctx, key)
}

// Delete releases one blob. Satisfies the message store's BlobDeleter and
// the preview sweeper's blob releaser.
func (s *Service) Delete(ctx context.Context, key string) error {
	return s.blobs.Delete(ctx, key)
}

// Store exposes the underlying blob store to the preview engine's image
// proxy step.
func (s *Service) Store() BlobStore { return s.blobs }
