package models

import "time"

// PreRegisterRequest is submitted by an administrator to create an inactive
// account holding only the external identifier and full name.
type PreRegisterRequest struct {
	ExternalID string `json:"user_id" validate:"required"`
	FullName   string `json:"full_name" validate:"required"`
}

// VerifyIdentityRequest checks the pre-registered details before activation.
type VerifyIdentityRequest struct {
	ExternalID string `json:"user_id" validate:"required"`
	FullName   string `json:"full_name" validate:"required"`
}

// VerifyIdentityResponse carries the internal id used by the next steps.
type VerifyIdentityResponse struct {
	UserID int64 `json:"user_id"`
}

// RequestOTPRequest asks for an activation code to be mailed.
type RequestOTPRequest struct {
	UserID int64  `json:"user_id" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
}

// OTPDelivery describes how the activation code reached the requester.
type OTPDelivery struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// ActivateRequest completes activation with the mailed code and a password.
type ActivateRequest struct {
	UserID   int64  `json:"user_id" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Code     string `json:"code" validate:"required,len=6"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the issued session and user identity.
type LoginResponse struct {
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Identity  `json:"user"`
}
