package user

import (
	"errors"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RoleNurse   Role = "nurse"
	RolePatient Role = "patient"
)

var AllRoles = []Role{RoleAdmin, RoleDoctor, RoleNurse, RolePatient}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleNurse, RolePatient:
		return true
	}
	return false
}

// Staff roles may look up any kind of user.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleDoctor || r == RoleNurse
}

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

type User struct {
	ID                 string
	Name               string
	Email              string
	PasswordHash       string
	Role               Role
	CreatedAt          time.Time
	OnboardingComplete bool
}

// Public is the stored-document view returned by profile and user listings.
type Public struct {
	ID                 string    `json:"_id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Role               Role      `json:"role"`
	CreatedAt          time.Time `json:"created_at"`
	OnboardingComplete bool      `json:"onboarding_complete"`
}

// AuthView is embedded in register and login responses.
type AuthView struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	Role               Role   `json:"role"`
	OnboardingComplete bool   `json:"onboarding_complete"`
}

// Summary denormalises a participant onto an appointment.
type Summary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u User) Public() Public {
	return Public{
		ID:                 u.ID,
		Name:               u.Name,
		Email:              u.Email,
		Role:               u.Role,
		CreatedAt:          u.CreatedAt,
		OnboardingComplete: u.OnboardingComplete,
	}
}

func (u User) AuthView() AuthView {
	return AuthView{
		ID:                 u.ID,
		Name:               u.Name,
		Email:              u.Email,
		Role:               u.Role,
		OnboardingComplete: u.OnboardingComplete,
	}
}

func (u User) Summary() Summary {
	return Summary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// NormalizeEmail is applied before every store write and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,not_blank,max=120"`
	Email    string `json:"email" binding:"required,clinic_email,max=254"`
	Password string `json:"password" binding:"required,strong_password,max=72"`
	Role     Role   `json:"role" binding:"required,oneof=admin doctor nurse patient"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     Role   `json:"role" binding:"required"`
}

// NewFromRegisterRequest builds the record to insert; the store assigns the ID.
func NewFromRegisterRequest(req RegisterRequest, passwordHash string) User {
	return User{
		Name:               strings.TrimSpace(req.Name),
		Email:              NormalizeEmail(req.Email),
		PasswordHash:       passwordHash,
		Role:               req.Role,
		CreatedAt:          time.Now().UTC(),
		OnboardingComplete: false,
	}
}
