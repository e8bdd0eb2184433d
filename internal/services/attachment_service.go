package services

import (
	"context"
	"errors"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/chaweee/BEventique-sub000/internal/models"
	"github.com/chaweee/BEventique-sub000/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const attachmentFolder = "attachments"

// AttachmentLocator finds the thread that owns an attachment reference.
type AttachmentLocator interface {
	FindThreadByAttachment(ctx context.Context, ref string) (*models.Thread, error)
}

// AttachmentService stores layout snapshots and other blobs for messages.
// The returned reference is opaque to the messaging core.
type AttachmentService struct {
	storage  StorageService
	locator  AttachmentLocator
	maxBytes int64
	logger   *zap.Logger
}

type UploadAttachmentInput struct {
	File        io.Reader
	Filename    string
	ContentType string
	Size        int64
}

func NewAttachmentService(
	storage StorageService,
	locator AttachmentLocator,
	maxBytes int64,
	logger *zap.Logger,
) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAttachmentBytes
	}
	return &AttachmentService{
		storage:  storage,
		locator:  locator,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

func (s *AttachmentService) Upload(ctx context.Context, caller Caller, input UploadAttachmentInput) (string, error) {
	if !caller.Role.Valid() {
		return "", ErrForbidden
	}
	if s.storage == nil {
		return "", ErrStorageUnavailable
	}
	if input.File == nil || input.Size <= 0 {
		return "", validationError("attachment file is required")
	}
	if input.Size > s.maxBytes {
		return "", validationError("attachment exceeds %d bytes", s.maxBytes)
	}

	ext := strings.ToLower(filepath.Ext(input.Filename))
	if len(ext) > 10 {
		ext = ""
	}
	objectName := path.Join(attachmentFolder, uuid.NewString()+ext)

	ref, err := s.storage.UploadFile(ctx, io.LimitReader(input.File, s.maxBytes), input.Size, objectName, input.ContentType)
	if err != nil {
		s.logger.Error("attachment upload failed", zap.String("object", objectName), zap.Error(err))
		return "", &StorageError{Op: "upload_attachment", Err: err}
	}

	s.logger.Debug("attachment stored",
		zap.String("ref", ref),
		zap.Int64("uploaded_by", caller.UserID),
		zap.Int64("size", input.Size),
	)
	return ref, nil
}

// SignedURL signs a reference only for callers who can view the thread of
// the first message that carried it. Unsent uploads cannot be signed.
func (s *AttachmentService) SignedURL(ctx context.Context, caller Caller, ref string) (string, error) {
	if err := authorize(caller, OpViewThread, nil); err != nil {
		return "", err
	}
	if s.storage == nil {
		return "", ErrStorageUnavailable
	}

	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, attachmentFolder+"/") || strings.Contains(ref, "..") {
		return "", validationError("invalid attachment reference")
	}

	thread, err := s.locator.FindThreadByAttachment(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrForbidden
		}
		return "", mapStoreError(s.logger, "find_attachment_thread", err)
	}
	if err := authorize(caller, OpViewThread, thread); err != nil {
		return "", err
	}

	signed, err := s.storage.GetSignedURL(ctx, ref)
	if err != nil {
		return "", &StorageError{Op: "sign_attachment", Err: err}
	}
	return signed, nil
}
