package models

import (
	"time"

	"github.com/google/uuid"
)

// Roles a dashboard user may hold. Stored as plain text in the users table.
const (
	RoleAdmin      = "admin"
	RolePharmacist = "pharmacist"
	RoleCashier    = "cashier"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	Role           string
	HashedPassword string
}
