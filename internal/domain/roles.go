// Package domain defines shared domain constants and types.
package domain

const (
	// RoleAdmin marks a configured bot operator.
	RoleAdmin = "admin"
	// RoleUser represents a standard user with no elevated privileges.
	RoleUser = "user"
)
