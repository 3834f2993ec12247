package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is issued by the account service; this service only verifies it.
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
