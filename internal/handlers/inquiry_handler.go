package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/chaweee/BEventique-sub000/internal/models"
	"github.com/chaweee/BEventique-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
)

type threadApplicationService interface {
	CreateThread(ctx context.Context, caller services.Caller, input services.CreateThreadInput) (*models.Thread, error)
	Escalate(ctx context.Context, caller services.Caller, input services.EscalateInput) (*models.Thread, error)
	ListThreads(ctx context.Context, caller services.Caller, statusFilter string) ([]models.Thread, error)
	GetThread(ctx context.Context, caller services.Caller, threadID int64) (*models.Thread, error)
	UpdateStatus(ctx context.Context, caller services.Caller, threadID int64, status string) (*models.Thread, error)
	AssignDesigner(ctx context.Context, caller services.Caller, threadID int64, designerID int64) (*models.Thread, error)
}

type messageApplicationService interface {
	SendMessage(ctx context.Context, caller services.Caller, input services.SendMessageInput) (*models.Message, error)
	ListMessages(ctx context.Context, caller services.Caller, threadID int64) ([]models.Message, error)
	MarkRead(ctx context.Context, caller services.Caller, threadID int64) (*models.Thread, error)
}

type InquiryHandler struct {
	threads  threadApplicationService
	messages messageApplicationService
}

type createThreadRequest struct {
	BookingID     *int64  `json:"booking_id"`
	Subject       string  `json:"subject"`
	RecipientType string  `json:"recipient_type"`
	Body          string  `json:"body"`
	Attachment    *string `json:"attachment"`
}

type escalateThreadRequest struct {
	CustomerID int64 `json:"customer_id"`
	createThreadRequest
}

type sendMessageRequest struct {
	Body       string  `json:"body"`
	Attachment *string `json:"attachment"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type assignDesignerRequest struct {
	DesignerID int64 `json:"designer_id"`
}

func NewInquiryHandler(threads threadApplicationService, messages messageApplicationService) *InquiryHandler {
	return &InquiryHandler{
		threads:  threads,
		messages: messages,
	}
}

func (h *InquiryHandler) ListThreads(c *fiber.Ctx) error {
	caller, err := parseCaller(c)
	if err != nil {
		return respondCallerError(c, err)
	}

	threads, err := h.threads.ListThreads(c.Context(), caller, c.Query("status"))
	if err != nil {
		return mapInquiryError(c, err)
	}

	return c.JSON(fiber.Map{"threads": threads})
}

func (h *InquiryHandler) CreateThread(c *fiber.Ctx) error {
	caller, err := parseCaller(c)
	if err != nil {
		return respondCallerError(c, err)
	}

	var req createThreadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body", "code": "validation"})
	}

	thread, err := h.threads.CreateThread(c.Context(), caller, req.toInput())
	if err != nil {
		return mapInquiryError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"thread": thread})
}

func (h *InquiryHandler) EscalateThread(c *fiber.Ctx) error {
	caller, err := parseCaller(c)
	if err != nil {
		return respondCallerError(c, err)
	}

	var req escalateThreadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body", "code": "validation"})
	}

	thread, err := h.threads.Escalate(c.Context(), caller, services.EscalateInput{
		CustomerID:        req.CustomerID,
		CreateThreadInput: req.createThreadRequest.toInput(),
	})
	if err != nil {
		return mapInquiryError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"thread": thread})
}

func (h *InquiryHandler) GetThread(c *fiber.Ctx) error {
	caller, threadID, err := parseThreadRequest(c)
	if err != nil {
		return respondCallerError(c, err)
	}

	thread, err := h.threads.GetThread(c.Context(), caller, threadID)
	if err != nil {
		return mapInquiryError(c, err)
	}

	return c.JSON(fiber.Map{"thread": thread})
}

func (h *InquiryHandler) ListMessages(c *fiber.Ctx) error {
	caller, threadID, err := parseThreadRequest(c)
	if err != nil {
		return respondCallerError(c, err)
	}

	messages, err := h.messages.ListMessages(c.Context(), caller, threadID)
	if err != nil {
		return mapInquiryError(c, err)
	}

	return c.JSON(fiber.Map{"messages": messages})
}

func (h *InquiryHandler) SendMessage(c *fiber.Ctx) error {
	caller, threadID, err := parseThreadRequest(c)
	if err != nil {
		return respondCallerError(c, err)
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body", "code": "validation"})
	}

	message, err := h.messages.SendMessage(c.Context(), caller, services.SendMessageInput{
		ThreadID:   threadID,
		Body:       req.Body,
		Attachment: req.Attachment,
	})
	if err != nil {
		return mapInquiryError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

func (h *InquiryHandler) UpdateStatus(c *fiber.Ctx) error {
	caller, threadID, err := parseThreadRequest(c)
	if err != nil {
		return respondCallerError(c, err)
	}

	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body", "code": "validation"})
	}

	thread, err := h.threads.UpdateStatus(c.Context(), caller, threadID, req.Status)
	if err != nil {
		return mapInquiryError(c, err)
	}

	return c.JSON(fiber.Map{"thread": thread})
}

func (h *InquiryHandler) AssignDesigner(c *fiber.Ctx) error {
	caller, threadID, err := parseThreadRequest(c)
	if err != nil {
		return respondCallerError(c, err)
	}

	var req assignDesignerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body", "code": "validation"})
	}

	thread, err := h.threads.AssignDesigner(c.Context(), caller, threadID, req.DesignerID)
	if err != nil {
		return mapInquiryError(c, err)
	}

	return c.JSON(fiber.Map{"thread": thread})
}

func (h *InquiryHandler) MarkRead(c *fiber.Ctx) error {
	caller, threadID, err := parseThreadRequest(c)
	if err != nil {
		return respondCallerError(c, err)
	}

	thread, err := h.messages.MarkRead(c.Context(), caller, threadID)
	if err != nil {
		return mapInquiryError(c, err)
	}

	return c.JSON(fiber.Map{"thread": thread})
}

func (r createThreadRequest) toInput() services.CreateThreadInput {
	return services.CreateThreadInput{
		BookingID:     r.BookingID,
		Subject:       r.Subject,
		RecipientType: r.RecipientType,
		Body:          r.Body,
		Attachment:    r.Attachment,
	}
}

var (
	errInvalidToken    = errors.New("invalid token")
	errUnknownRole     = errors.New("unknown role")
	errInvalidThreadID = errors.New("invalid thread id")
)

// parseCaller reads the identity AuthRequired stored on the request.
func parseCaller(c *fiber.Ctx) (services.Caller, error) {
	userIDStr, ok := c.Locals("user_id").(string)
	if !ok {
		return services.Caller{}, errInvalidToken
	}
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil || userID <= 0 {
		return services.Caller{}, errInvalidToken
	}

	roleStr, _ := c.Locals("role").(string)
	role, ok := models.ParseRole(roleStr)
	if !ok {
		return services.Caller{}, errUnknownRole
	}

	return services.Caller{UserID: userID, Role: role}, nil
}

func parseThreadRequest(c *fiber.Ctx) (services.Caller, int64, error) {
	caller, err := parseCaller(c)
	if err != nil {
		return services.Caller{}, 0, err
	}
	threadID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || threadID <= 0 {
		return services.Caller{}, 0, errInvalidThreadID
	}
	return caller, threadID, nil
}

func respondCallerError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, errUnknownRole):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden", "code": "forbidden"})
	case errors.Is(err, errInvalidThreadID):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid thread id", "code": "validation"})
	default:
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token", "code": "unauthorized"})
	}
}

func mapInquiryError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error(), "code": "validation"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden", "code": "forbidden"})
	case errors.Is(err, services.ErrThreadNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Thread not found", "code": "not_found"})
	case errors.Is(err, services.ErrThreadClosed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Thread is closed", "code": "thread_closed"})
	case errors.Is(err, services.ErrInvalidTransition):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Invalid status transition", "code": "invalid_transition"})
	case errors.Is(err, services.ErrStorageUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Attachment storage is not configured", "code": "storage_unavailable"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process inquiry request", "code": "storage"})
	}
}
