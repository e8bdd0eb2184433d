package services

import "github.com/chaweee/BEventique-sub000/internal/models"

// Caller is the verified identity attached to a request or connection.
type Caller struct {
	UserID int64
	Role   models.Role
}

type Operation string

const (
	OpCreateThread   Operation = "create_thread"
	OpEscalate       Operation = "escalate"
	OpListThreads    Operation = "list_threads"
	OpViewThread     Operation = "view_thread"
	OpSendMessage    Operation = "send_message"
	OpMarkRead       Operation = "mark_read"
	OpUpdateStatus   Operation = "update_status"
	OpCloseThread    Operation = "close_thread"
	OpAssignDesigner Operation = "assign_designer"
)

// Permits is the role half of the access check. It says nothing about which
// threads the caller may touch; see CanAccessThread for that.
func Permits(role models.Role, op Operation) bool {
	switch role {
	case models.RoleAdmin:
		return op != OpCreateThread
	case models.RoleDesigner:
		switch op {
		case OpListThreads, OpViewThread, OpSendMessage, OpMarkRead, OpUpdateStatus:
			return true
		}
		return false
	case models.RoleCustomer:
		switch op {
		case OpCreateThread, OpListThreads, OpViewThread, OpSendMessage, OpMarkRead:
			return true
		}
		return false
	default:
		return false
	}
}

func CanAccessThread(caller Caller, thread *models.Thread) bool {
	switch caller.Role {
	case models.RoleAdmin:
		return true
	case models.RoleDesigner:
		return thread.DesignerID != nil && *thread.DesignerID == caller.UserID
	case models.RoleCustomer:
		return thread.CustomerID == caller.UserID
	default:
		return false
	}
}

func authorize(caller Caller, op Operation, thread *models.Thread) error {
	if !Permits(caller.Role, op) {
		return ErrForbidden
	}
	if thread != nil && !CanAccessThread(caller, thread) {
		return ErrForbidden
	}
	return nil
}
