package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"labstock/internal/blob"
	"labstock/pkg/domain"
)

// AttachmentKind distinguishes the two binary attachments of a reagent.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentSDS   AttachmentKind = "sds"
)

// ParseAttachmentKind accepts "image" or "sds".
func ParseAttachmentKind(s string) (AttachmentKind, error) {
	switch AttachmentKind(s) {
	case AttachmentImage, AttachmentSDS:
		return AttachmentKind(s), nil
	}
	return "", domain.Invalid("attachment", "expected image or sds, got %q", s)
}

// AttachmentKey returns the blob key of a reagent attachment.
func AttachmentKey(reagentID string, kind AttachmentKind) string {
	return "reagents/" + reagentID + "/" + string(kind)
}

// Attachment is an open attachment stream. The caller closes Body.
type Attachment struct {
	Info blob.Info
	Body io.ReadCloser
}

// AttachImage stores or replaces the reagent's image.
func (s *Service) AttachImage(ctx context.Context, reagentID string, r io.Reader, contentType string) (domain.Reagent, error) {
	return s.attach(ctx, reagentID, AttachmentImage, r, contentType)
}

// AttachSDS stores or replaces the reagent's safety data sheet.
func (s *Service) AttachSDS(ctx context.Context, reagentID string, r io.Reader, contentType string) (domain.Reagent, error) {
	return s.attach(ctx, reagentID, AttachmentSDS, r, contentType)
}

// attach stores the bytes under the reagent's fixed attachment key. A first
// upload is written before the reagent records the key and removed again if
// that write fails. A replacement is recorded first and then swapped in
// place, so a failed transaction leaves the previous attachment untouched.
// Every blob backend replaces an object atomically.
func (s *Service) attach(ctx context.Context, reagentID string, kind AttachmentKind, r io.Reader, contentType string) (domain.Reagent, error) {
	current, ok, err := s.GetReagent(ctx, reagentID)
	if err != nil {
		return domain.Reagent{}, err
	}
	if !ok {
		return domain.Reagent{}, domain.NotFoundError{Entity: domain.EntityReagent, ID: reagentID}
	}
	key := AttachmentKey(reagentID, kind)

	if attachmentKey(current, kind) != nil {
		updated, err := s.recordAttachment(ctx, reagentID, kind, key)
		if err != nil {
			return domain.Reagent{}, err
		}
		if err := s.putAttachment(ctx, reagentID, kind, key, r, contentType); err != nil {
			return domain.Reagent{}, err
		}
		return updated, nil
	}

	if err := s.putAttachment(ctx, reagentID, kind, key, r, contentType); err != nil {
		return domain.Reagent{}, err
	}
	updated, err := s.recordAttachment(ctx, reagentID, kind, key)
	if err != nil {
		if _, derr := s.blobs.Delete(ctx, key); derr != nil {
			s.logger.Warn("orphaned attachment not removed", "reagent", reagentID, "key", key, "error", derr)
		}
		return domain.Reagent{}, err
	}
	return updated, nil
}

func (s *Service) putAttachment(ctx context.Context, reagentID string, kind AttachmentKind, key string, r io.Reader, contentType string) error {
	if _, err := s.blobs.Put(ctx, key, r, blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"reagent": reagentID, "kind": string(kind)},
		Overwrite:   true,
	}); err != nil {
		return fmt.Errorf("store %s: %w", kind, err)
	}
	return nil
}

func (s *Service) recordAttachment(ctx context.Context, reagentID string, kind AttachmentKind, key string) (domain.Reagent, error) {
	var updated domain.Reagent
	_, err := s.run(ctx, "attach_"+string(kind), func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateReagent(reagentID, func(r *domain.Reagent) error {
			setAttachmentKey(r, kind, &key)
			return nil
		})
		return err
	})
	return updated, err
}

// RemoveAttachment clears an attachment and deletes its bytes. Removing an
// absent attachment is not an error.
func (s *Service) RemoveAttachment(ctx context.Context, reagentID string, kind AttachmentKind) (domain.Reagent, error) {
	var (
		updated domain.Reagent
		key     *string
	)
	_, err := s.run(ctx, "remove_"+string(kind), func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateReagent(reagentID, func(r *domain.Reagent) error {
			key = attachmentKey(*r, kind)
			setAttachmentKey(r, kind, nil)
			return nil
		})
		return err
	})
	if err != nil {
		return domain.Reagent{}, err
	}
	if key != nil {
		if _, err := s.blobs.Delete(ctx, *key); err != nil {
			return updated, fmt.Errorf("delete %s: %w", kind, err)
		}
	}
	return updated, nil
}

// ReagentImage opens the reagent's image; ok is false when none is attached.
func (s *Service) ReagentImage(ctx context.Context, reagentID string) (Attachment, bool, error) {
	return s.openAttachment(ctx, reagentID, AttachmentImage)
}

// ReagentSDS opens the reagent's safety data sheet; ok is false when none is attached.
func (s *Service) ReagentSDS(ctx context.Context, reagentID string) (Attachment, bool, error) {
	return s.openAttachment(ctx, reagentID, AttachmentSDS)
}

func (s *Service) openAttachment(ctx context.Context, reagentID string, kind AttachmentKind) (Attachment, bool, error) {
	reagent, ok, err := s.GetReagent(ctx, reagentID)
	if err != nil || !ok {
		return Attachment{}, false, err
	}
	key := attachmentKey(reagent, kind)
	if key == nil {
		return Attachment{}, false, nil
	}
	info, body, err := s.blobs.Get(ctx, *key)
	if errors.Is(err, blob.ErrNotFound) {
		s.logger.Warn("attachment missing from blob store", "reagent", reagentID, "key", *key)
		return Attachment{}, false, nil
	}
	if err != nil {
		return Attachment{}, false, err
	}
	return Attachment{Info: info, Body: body}, true, nil
}

// AttachmentURL returns a time-limited download URL for an attachment when
// the blob backend can presign.
func (s *Service) AttachmentURL(ctx context.Context, reagentID string, kind AttachmentKind, expiry time.Duration) (string, error) {
	reagent, ok, err := s.GetReagent(ctx, reagentID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.NotFoundError{Entity: domain.EntityReagent, ID: reagentID}
	}
	key := attachmentKey(reagent, kind)
	if key == nil {
		return "", fmt.Errorf("reagent %s has no %s: %w", reagentID, kind, blob.ErrNotFound)
	}
	return s.blobs.PresignURL(ctx, *key, blob.SignedURLOptions{Expiry: expiry})
}

func attachmentKey(r domain.Reagent, kind AttachmentKind) *string {
	if kind == AttachmentImage {
		if r.HasImage() {
			return r.ImageKey
		}
		return nil
	}
	if r.HasSDS() {
		return r.SDSKey
	}
	return nil
}

func setAttachmentKey(r *domain.Reagent, kind AttachmentKind, key *string) {
	if kind == AttachmentImage {
		r.ImageKey = key
		return
	}
	r.SDSKey = key
}
