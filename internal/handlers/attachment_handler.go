package handlers

import (
	"context"

	"github.com/chaweee/BEventique-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
)

type attachmentApplicationService interface {
	Upload(ctx context.Context, caller services.Caller, input services.UploadAttachmentInput) (string, error)
	SignedURL(ctx context.Context, caller services.Caller, ref string) (string, error)
}

type AttachmentHandler struct {
	service attachmentApplicationService
}

func NewAttachmentHandler(service attachmentApplicationService) *AttachmentHandler {
	return &AttachmentHandler{service: service}
}

func (h *AttachmentHandler) Upload(c *fiber.Ctx) error {
	caller, err := parseCaller(c)
	if err != nil {
		return respondCallerError(c, err)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required", "code": "validation"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to open file", "code": "storage"})
	}
	defer file.Close()

	ref, err := h.service.Upload(c.Context(), caller, services.UploadAttachmentInput{
		File:        file,
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
	})
	if err != nil {
		return mapInquiryError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"attachment_ref": ref})
}

func (h *AttachmentHandler) SignedURL(c *fiber.Ctx) error {
	caller, err := parseCaller(c)
	if err != nil {
		return respondCallerError(c, err)
	}

	url, err := h.service.SignedURL(c.Context(), caller, c.Query("ref"))
	if err != nil {
		return mapInquiryError(c, err)
	}

	return c.JSON(fiber.Map{"url": url})
}
