package models

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

// ServerStatus is the lifecycle status of a listing
type ServerStatus string

const (
	StatusActive     ServerStatus = "active"
	StatusInactive   ServerStatus = "inactive"
	StatusDeprecated ServerStatus = "deprecated"
)

// Registration defaults
const (
	DefaultProtocolVersion = "1.0.0"
	DefaultTag             = "mcp"
	DefaultUptime          = 100
)

// Valid reports whether s is one of the enumerated statuses
func (s ServerStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusDeprecated:
		return true
	}
	return false
}

// Metrics holds usage figures for a listing
type Metrics struct {
	Users  int     `json:"users"`
	Rating float64 `json:"rating"`
	Uptime float64 `json:"uptime"`
}

// ServerListing represents a registered MCP server listing.
// This is the domain shape; the row shape lives in the store.
type ServerListing struct {
	Id              string
	OwnerId         string // immutable after creation
	Name            string
	Description     string
	EndpointUrl     string // usually a GitHub repository URL, may be empty
	ProtocolVersion string
	Tags            []string
	Documentation   string // markdown
	Status          ServerStatus
	Metrics         Metrics
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewServerListing returns a listing carrying the registration defaults
func NewServerListing(ownerId string) ServerListing {
	return ServerListing{
		OwnerId:         ownerId,
		ProtocolVersion: DefaultProtocolVersion,
		Tags:            []string{DefaultTag},
		Status:          StatusActive,
		Metrics:         Metrics{Uptime: DefaultUptime},
	}
}

// ApplyDefaults fills the fields that are absent at creation time
func (m *ServerListing) ApplyDefaults() {
	if m.ProtocolVersion == "" {
		m.ProtocolVersion = DefaultProtocolVersion
	}
	if m.Tags == nil {
		m.Tags = []string{DefaultTag}
	}
	if m.Status == "" {
		m.Status = StatusActive
	}
	m.Tags = NormalizeTags(m.Tags)
}

// IsOwnedBy reports whether userId owns the listing.
// Only used to decide which controls to offer; authorization happens
// in the API layer.
func (m *ServerListing) IsOwnedBy(userId string) bool {
	return userId != "" && m.OwnerId == userId
}

// Clone returns a deep copy
func (m ServerListing) Clone() ServerListing {
	if m.Tags != nil {
		m.Tags = append([]string(nil), m.Tags...)
	}
	return m
}

// NormalizeTags trims tags, drops empty ones and removes duplicates
// while keeping the first-insertion order. Comparison is case-sensitive.
func NormalizeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	trimmed := lo.FilterMap(tags, func(t string, _ int) (string, bool) {
		t = strings.TrimSpace(t)
		return t, t != ""
	})
	return lo.Uniq(trimmed)
}

// ServerPatch is a partial update of a listing. A nil field is absent and
// will not be written. Id and OwnerId cannot be patched.
type ServerPatch struct {
	Name            *string
	Description     *string
	EndpointUrl     *string
	ProtocolVersion *string
	Tags            *[]string
	Documentation   *string
	Status          *ServerStatus
	Metrics         *Metrics
}

// IsEmpty reports whether the patch sets no field
func (p ServerPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.EndpointUrl == nil &&
		p.ProtocolVersion == nil && p.Tags == nil && p.Documentation == nil &&
		p.Status == nil && p.Metrics == nil
}

// ApplyTo writes the set fields of the patch onto m
func (p ServerPatch) ApplyTo(m *ServerListing) {
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Description != nil {
		m.Description = *p.Description
	}
	if p.EndpointUrl != nil {
		m.EndpointUrl = *p.EndpointUrl
	}
	if p.ProtocolVersion != nil {
		m.ProtocolVersion = *p.ProtocolVersion
	}
	if p.Tags != nil {
		m.Tags = NormalizeTags(*p.Tags)
	}
	if p.Documentation != nil {
		m.Documentation = *p.Documentation
	}
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.Metrics != nil {
		m.Metrics = *p.Metrics
	}
}

// DiffListings returns a patch holding only the mutable fields that differ
// between before and after.
func DiffListings(before, after ServerListing) ServerPatch {
	var p ServerPatch
	if before.Name != after.Name {
		p.Name = lo.ToPtr(after.Name)
	}
	if before.Description != after.Description {
		p.Description = lo.ToPtr(after.Description)
	}
	if before.EndpointUrl != after.EndpointUrl {
		p.EndpointUrl = lo.ToPtr(after.EndpointUrl)
	}
	if before.ProtocolVersion != after.ProtocolVersion {
		p.ProtocolVersion = lo.ToPtr(after.ProtocolVersion)
	}
	if !equalTags(before.Tags, after.Tags) {
		tags := append([]string{}, after.Tags...)
		p.Tags = &tags
	}
	if before.Documentation != after.Documentation {
		p.Documentation = lo.ToPtr(after.Documentation)
	}
	if before.Status != after.Status {
		p.Status = lo.ToPtr(after.Status)
	}
	if before.Metrics != after.Metrics {
		p.Metrics = lo.ToPtr(after.Metrics)
	}
	return p
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
