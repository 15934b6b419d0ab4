package models

import "time"

// AuthProvider identifies how a user signed in
type AuthProvider string

const (
	ProviderGitHub AuthProvider = "github"
	ProviderWeb3   AuthProvider = "web3"
	ProviderEmail  AuthProvider = "email"
)

// UserProfile is the display part of an identity
type UserProfile struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// User is the application identity derived from an auth session.
// It is computed on every session check and never stored directly.
type User struct {
	Id           string       `json:"id"`
	Email        string       `json:"email"`
	AuthProvider AuthProvider `json:"authProvider"`
	Profile      UserProfile  `json:"profile"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// SessionUser is the user object returned by the auth provider
type SessionUser struct {
	Id           string         `json:"id" yaml:"id"`
	Email        string         `json:"email" yaml:"email"`
	AppMetadata  map[string]any `json:"app_metadata" yaml:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata" yaml:"user_metadata"`
	CreatedAt    *time.Time     `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt    *time.Time     `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Profile is the companion row kept 1:1 with an identity
type Profile struct {
	Id           string       `json:"id"`
	Email        string       `json:"email"`
	AuthProvider AuthProvider `json:"authProvider"`
	Name         string       `json:"name"`
	AvatarUrl    string       `json:"avatarUrl,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// ProfileSyncStatus tracks reconciliation of the profile row separately
// from the identity itself.
type ProfileSyncStatus string

const (
	ProfileSyncUnknown ProfileSyncStatus = ""
	ProfileSyncPending ProfileSyncStatus = "pending"
	ProfileSyncCreated ProfileSyncStatus = "created"
	ProfileSyncExists  ProfileSyncStatus = "exists"
	ProfileSyncFailed  ProfileSyncStatus = "failed"
)

// ProfileSync is the outcome of a profile reconciliation
type ProfileSync struct {
	Status ProfileSyncStatus `json:"status"`
	Error  string            `json:"error,omitempty"`
}

// MeResponse is returned by GET /me
type MeResponse struct {
	User        User        `json:"user"`
	ProfileSync ProfileSync `json:"profileSync"`
}

// ProfileListResponse is returned by GET /profiles/:id
type ProfileListResponse struct {
	Profiles []Profile `json:"profiles"`
	Total    int       `json:"total"`
}
