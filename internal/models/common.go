package models

import "time"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"` // per-field validation messages
}

// HealthResponse is returned by the health endpoint
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

// ProvidersResponse lists the sign-in methods enabled for this deployment
type ProvidersResponse struct {
	Providers []string `json:"providers"`
	GitHub    bool     `json:"github"`
	Email     bool     `json:"email"`
}
