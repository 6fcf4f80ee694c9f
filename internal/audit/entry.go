package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action is the kind of authentication event an entry describes.
type Action string

const (
	ActionRegister Action = "register"
	ActionLogin    Action = "login"
)

// Entry is one immutable record of an authentication attempt. Subject is the email
// when the user was resolved, otherwise whatever identifier was submitted; it may be
// empty.
type Entry struct {
	ID      uuid.UUID `json:"id"`
	At      time.Time `json:"at"`
	Subject string    `json:"subject"`
	Action  Action    `json:"action"`
	Success bool      `json:"success"`
	Details string    `json:"details"`
}
