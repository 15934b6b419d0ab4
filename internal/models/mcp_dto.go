package models

import "time"

// CreateServerRequest represents the request body for registering a new MCP server
type CreateServerRequest struct {
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	EndpointUrl     string       `json:"endpointUrl"`
	ProtocolVersion string       `json:"protocolVersion"`
	Tags            []string     `json:"tags"`
	Documentation   string       `json:"documentation"`
	Status          ServerStatus `json:"status"`
	Metrics         *Metrics     `json:"metrics,omitempty"`
}

// ToDomain converts CreateServerRequest DTO to a domain ServerListing owned by ownerId
func (req *CreateServerRequest) ToDomain(ownerId string) ServerListing {
	listing := NewServerListing(ownerId)
	listing.Name = req.Name
	listing.Description = req.Description
	listing.EndpointUrl = req.EndpointUrl
	listing.Documentation = req.Documentation
	if req.ProtocolVersion != "" {
		listing.ProtocolVersion = req.ProtocolVersion
	}
	if req.Tags != nil {
		listing.Tags = NormalizeTags(req.Tags)
	}
	if req.Status != "" {
		listing.Status = req.Status
	}
	if req.Metrics != nil {
		listing.Metrics = *req.Metrics
	}
	return listing
}

// UpdateServerRequest is a partial update. Absent JSON keys stay nil.
// Id and OwnerId are decoded only so that attempts to change them can be
// rejected.
type UpdateServerRequest struct {
	Id              *string       `json:"id,omitempty"`
	OwnerId         *string       `json:"ownerId,omitempty"`
	Name            *string       `json:"name,omitempty"`
	Description     *string       `json:"description,omitempty"`
	EndpointUrl     *string       `json:"endpointUrl,omitempty"`
	ProtocolVersion *string       `json:"protocolVersion,omitempty"`
	Tags            *[]string     `json:"tags,omitempty"`
	Documentation   *string       `json:"documentation,omitempty"`
	Status          *ServerStatus `json:"status,omitempty"`
	Metrics         *Metrics      `json:"metrics,omitempty"`
}

// ChangesImmutable reports whether the request tries to give the listing
// a different id or owner
func (req *UpdateServerRequest) ChangesImmutable(current ServerListing) bool {
	return (req.Id != nil && *req.Id != current.Id) ||
		(req.OwnerId != nil && *req.OwnerId != current.OwnerId)
}

// ToPatch converts the request into a ServerPatch
func (req *UpdateServerRequest) ToPatch() ServerPatch {
	return ServerPatch{
		Name:            req.Name,
		Description:     req.Description,
		EndpointUrl:     req.EndpointUrl,
		ProtocolVersion: req.ProtocolVersion,
		Tags:            req.Tags,
		Documentation:   req.Documentation,
		Status:          req.Status,
		Metrics:         req.Metrics,
	}
}

// PatchToRequest is the inverse of ToPatch, used by the API client
func PatchToRequest(p ServerPatch) UpdateServerRequest {
	return UpdateServerRequest{
		Name:            p.Name,
		Description:     p.Description,
		EndpointUrl:     p.EndpointUrl,
		ProtocolVersion: p.ProtocolVersion,
		Tags:            p.Tags,
		Documentation:   p.Documentation,
		Status:          p.Status,
		Metrics:         p.Metrics,
	}
}

// ServerResponse represents the response structure for a single listing
type ServerResponse struct {
	Id              string       `json:"id"`
	OwnerId         string       `json:"ownerId"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	EndpointUrl     string       `json:"endpointUrl"`
	ProtocolVersion string       `json:"protocolVersion"`
	Tags            []string     `json:"tags"`
	Documentation   string       `json:"documentation"`
	Status          ServerStatus `json:"status"`
	Metrics         Metrics      `json:"metrics"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// ServerListResponse represents the response structure for listing servers
type ServerListResponse struct {
	Servers []ServerResponse `json:"servers"`
	Total   int              `json:"total"`
}

// ToResponse converts a domain ServerListing to a ServerResponse DTO
func (m *ServerListing) ToResponse() ServerResponse {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	return ServerResponse{
		Id:              m.Id,
		OwnerId:         m.OwnerId,
		Name:            m.Name,
		Description:     m.Description,
		EndpointUrl:     m.EndpointUrl,
		ProtocolVersion: m.ProtocolVersion,
		Tags:            tags,
		Documentation:   m.Documentation,
		Status:          m.Status,
		Metrics:         m.Metrics,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// ToDomain converts a response back into the domain shape
func (r *ServerResponse) ToDomain() ServerListing {
	return ServerListing{
		Id:              r.Id,
		OwnerId:         r.OwnerId,
		Name:            r.Name,
		Description:     r.Description,
		EndpointUrl:     r.EndpointUrl,
		ProtocolVersion: r.ProtocolVersion,
		Tags:            r.Tags,
		Documentation:   r.Documentation,
		Status:          r.Status,
		Metrics:         r.Metrics,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// TestServerRequest is the body of POST /servers/:id/test
type TestServerRequest struct {
	Input string `json:"input"`
	Probe bool   `json:"probe"`
}

// TestResult is the outcome of testing an endpoint
type TestResult struct {
	Success       bool     `json:"success"`
	Response      any      `json:"response,omitempty"`
	Error         string   `json:"error,omitempty"`
	DurationMs    int64    `json:"durationMs"`
	ServerName    string   `json:"serverName,omitempty"`
	ServerVersion string   `json:"serverVersion,omitempty"`
	Tools         []string `json:"tools,omitempty"`
}

// ReadmeResponse is returned by GET /readme
type ReadmeResponse struct {
	Url     string `json:"url"`
	Found   bool   `json:"found"`
	Content string `json:"content,omitempty"`
}
