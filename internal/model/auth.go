package model

import "github.com/golang-jwt/jwt/v5"

// HostClaims are JWT claims for a business user watching the lead feed
type HostClaims struct {
	HostID   string `json:"hostId"`
	ClientID string `json:"clientId"`
	jwt.RegisteredClaims
}

// SessionClaims are JWT claims for a visitor's session-scoped token
type SessionClaims struct {
	SessionID string `json:"sessionId"`
	FormID    string `json:"formId"`
	jwt.RegisteredClaims
}

// LoginRequest is the request body for host login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned after successful login
type LoginResponse struct {
	Token    string `json:"token"`
	HostID   string `json:"hostId"`
	ClientID string `json:"clientId"`
}
