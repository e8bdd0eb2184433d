package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleDesigner Role = "designer"
	RoleAdmin    Role = "admin"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleCustomer:
		return RoleCustomer, true
	case RoleDesigner:
		return RoleDesigner, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// Party is the side of a thread that owns an unread counter. Designers and
// admins share the staff counter.
type Party string

const (
	PartyCustomer Party = "customer"
	PartyStaff    Party = "staff"
)

func (r Role) Party() Party {
	if r == RoleCustomer {
		return PartyCustomer
	}
	return PartyStaff
}

func (p Party) Opposite() Party {
	if p == PartyCustomer {
		return PartyStaff
	}
	return PartyCustomer
}

type ThreadStatus string

const (
	StatusOpen       ThreadStatus = "open"
	StatusInProgress ThreadStatus = "in_progress"
	StatusResolved   ThreadStatus = "resolved"
	StatusClosed     ThreadStatus = "closed"
)

func ParseThreadStatus(raw string) (ThreadStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open":
		return StatusOpen, true
	case "in_progress", "inprogress", "in-progress":
		return StatusInProgress, true
	case "resolved":
		return StatusResolved, true
	case "closed":
		return StatusClosed, true
	default:
		return "", false
	}
}

// IsLive reports whether the status is one of the non-terminal states.
func (s ThreadStatus) IsLive() bool {
	return s == StatusOpen || s == StatusInProgress || s == StatusResolved
}

type RecipientType string

const (
	RecipientAdmin    RecipientType = "admin"
	RecipientDesigner RecipientType = "designer"
)

func ParseRecipientType(raw string) (RecipientType, bool) {
	switch RecipientType(strings.ToLower(strings.TrimSpace(raw))) {
	case RecipientAdmin:
		return RecipientAdmin, true
	case RecipientDesigner:
		return RecipientDesigner, true
	default:
		return "", false
	}
}

type Thread struct {
	ID                int64        `json:"id"`
	CustomerID        int64        `json:"customer_id"`
	DesignerID        *int64       `json:"designer_id"`
	BookingID         *int64       `json:"booking_id"`
	Subject           string       `json:"subject"`
	Status            ThreadStatus `json:"status"`
	UnreadForCustomer int          `json:"unread_for_customer"`
	UnreadForStaff    int          `json:"unread_for_staff"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// UnreadFor returns the counter owned by the given party.
func (t *Thread) UnreadFor(p Party) int {
	if p == PartyCustomer {
		return t.UnreadForCustomer
	}
	return t.UnreadForStaff
}

type Message struct {
	ID         int64     `json:"id"`
	ThreadID   int64     `json:"thread_id"`
	SenderID   int64     `json:"sender_id"`
	SenderRole Role      `json:"sender_role"`
	Body       string    `json:"body"`
	Attachment *string   `json:"attachment,omitempty"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}
