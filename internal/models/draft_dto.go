package models

import "time"

// DraftMode says whether a draft registers a new listing or edits one
type DraftMode string

const (
	DraftCreate DraftMode = "create"
	DraftEdit   DraftMode = "edit"
)

// DraftSnapshot is a point-in-time copy of a draft's state
type DraftSnapshot struct {
	Id            string            `json:"id"`
	Mode          DraftMode         `json:"mode"`
	ServerId      string            `json:"serverId,omitempty"`
	Listing       ServerResponse    `json:"listing"`
	LoadingReadme bool              `json:"loadingReadme"`
	ReadmeSuccess bool              `json:"readmeSuccess"`
	Saving        bool              `json:"saving"`
	Saved         bool              `json:"saved"`
	Error         string            `json:"error,omitempty"`
	FieldErrors   map[string]string `json:"fieldErrors,omitempty"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// CreateDraftRequest opens a draft. An empty ServerId starts a registration.
type CreateDraftRequest struct {
	ServerId string `json:"serverId"`
}

// DraftSaveResponse is returned when a draft is committed
type DraftSaveResponse struct {
	Server ServerResponse `json:"server"`
	Draft  DraftSnapshot  `json:"draft"`
}
