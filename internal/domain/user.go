// Package domain contains core domain types for the CaseCoach application.
package domain

import (
	"time"
)

// UserKind distinguishes professors from students.
type UserKind string

const (
	UserProfessor UserKind = "professor"
	UserStudent   UserKind = "student"
)

// User represents a professor or a student.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Kind      UserKind  `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// IsProfessor returns true if the user authors cases and assignments.
func (u *User) IsProfessor() bool {
	return u.Kind == UserProfessor
}
