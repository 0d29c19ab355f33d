package identity

import (
	"time"

	"github.com/google/uuid"
)

const (
	RolePlayer = "player"
	RoleAdmin  = "admin"
)

// RedactedName replaces the display name on a removed author's messages.
const RedactedName = "Former member"

type User struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Password    string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Principal is the resolved caller identity threaded into every chat
// operation. A zero Principal (Anonymous) means no authenticated caller.
type Principal struct {
	UserID      uuid.UUID
	Username    string
	DisplayName string
	Role        string
}

// Anonymous reports whether the principal carries no identity.
func (p Principal) Anonymous() bool { return p.UserID == uuid.Nil }

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

type RegisterRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=50"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
	Password    string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
}
