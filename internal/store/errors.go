package store

import "errors"

var (
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrStateMismatch        = errors.New("ticket state changed concurrently")
	ErrTransitionNotAllowed = errors.New("transition not allowed")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrProfileExists        = errors.New("profile already exists")
	ErrWorkflowNotFound     = errors.New("workflow not found")
	ErrGroupNotFound        = errors.New("service group not found")
	ErrTouchpointNotFound   = errors.New("touchpoint not found")
)
