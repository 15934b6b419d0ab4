package repository

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/imyashkale/mcphub/internal/database"
	"github.com/imyashkale/mcphub/internal/models"
)

// Row columns of the servers table. Fields not listed keep their name.
const (
	colId              = "id"
	colName            = "name"
	colDescription     = "description"
	colEndpointUrl     = "endpoint_url"
	colProtocolVersion = "protocol_version"
	colOwnerId         = "owner_id"
	colTags            = "tags"
	colDocumentation   = "documentation"
	colStatus          = "status"
	colMetrics         = "metrics"
	colCreatedAt       = "created_at"
	colUpdatedAt       = "updated_at"

	colEmail        = "email"
	colAuthProvider = "auth_provider"
	colAvatarUrl    = "avatar_url"
)

// ListingToRow maps a listing to the row shape. Store-assigned columns
// (id, timestamps) are omitted while zero, and so is an empty endpoint.
func ListingToRow(l models.ServerListing) database.Row {
	row := database.Row{
		colName:            l.Name,
		colDescription:     l.Description,
		colProtocolVersion: l.ProtocolVersion,
		colOwnerId:         l.OwnerId,
		colTags:            tagsValue(l.Tags),
		colDocumentation:   l.Documentation,
		colStatus:          string(l.Status),
		colMetrics:         metricsValue(l.Metrics),
	}
	if l.Id != "" {
		row[colId] = l.Id
	}
	if l.EndpointUrl != "" {
		row[colEndpointUrl] = l.EndpointUrl
	}
	if !l.CreatedAt.IsZero() {
		row[colCreatedAt] = l.CreatedAt
	}
	if !l.UpdatedAt.IsZero() {
		row[colUpdatedAt] = l.UpdatedAt
	}
	return row
}

// PatchToRow maps only the fields present in p
func PatchToRow(p models.ServerPatch) database.Row {
	row := database.Row{}
	if p.Name != nil {
		row[colName] = *p.Name
	}
	if p.Description != nil {
		row[colDescription] = *p.Description
	}
	if p.EndpointUrl != nil {
		row[colEndpointUrl] = *p.EndpointUrl
	}
	if p.ProtocolVersion != nil {
		row[colProtocolVersion] = *p.ProtocolVersion
	}
	if p.Tags != nil {
		row[colTags] = tagsValue(models.NormalizeTags(*p.Tags))
	}
	if p.Documentation != nil {
		row[colDocumentation] = *p.Documentation
	}
	if p.Status != nil {
		row[colStatus] = string(*p.Status)
	}
	if p.Metrics != nil {
		row[colMetrics] = metricsValue(*p.Metrics)
	}
	return row
}

// RowToListing maps a row to the domain shape. Loosely typed values coming
// back from the different stores are tolerated.
func RowToListing(row database.Row) models.ServerListing {
	return models.ServerListing{
		Id:              asString(row[colId]),
		OwnerId:         asString(row[colOwnerId]),
		Name:            asString(row[colName]),
		Description:     asString(row[colDescription]),
		EndpointUrl:     asString(row[colEndpointUrl]),
		ProtocolVersion: asString(row[colProtocolVersion]),
		Tags:            asStringSlice(row[colTags]),
		Documentation:   asString(row[colDocumentation]),
		Status:          models.ServerStatus(asString(row[colStatus])),
		Metrics:         asMetrics(row[colMetrics]),
		CreatedAt:       asTime(row[colCreatedAt]),
		UpdatedAt:       asTime(row[colUpdatedAt]),
	}
}

// ProfileToRow maps a profile to the profiles table
func ProfileToRow(p models.Profile) database.Row {
	row := database.Row{
		colId:           p.Id,
		colEmail:        p.Email,
		colAuthProvider: string(p.AuthProvider),
		colName:         p.Name,
	}
	if p.AvatarUrl != "" {
		row[colAvatarUrl] = p.AvatarUrl
	}
	if !p.CreatedAt.IsZero() {
		row[colCreatedAt] = p.CreatedAt
	}
	return row
}

// RowToProfile maps a profiles row to the domain shape
func RowToProfile(row database.Row) models.Profile {
	return models.Profile{
		Id:           asString(row[colId]),
		Email:        asString(row[colEmail]),
		AuthProvider: models.AuthProvider(asString(row[colAuthProvider])),
		Name:         asString(row[colName]),
		AvatarUrl:    asString(row[colAvatarUrl]),
		CreatedAt:    asTime(row[colCreatedAt]),
		UpdatedAt:    asTime(row[colUpdatedAt]),
	}
}

func tagsValue(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return append([]string{}, tags...)
}

func metricsValue(m models.Metrics) map[string]any {
	return map[string]any{
		"users":  m.Users,
		"rating": m.Rating,
		"uptime": m.Uptime,
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case *string:
		if s == nil {
			return ""
		}
		return *s
	case []byte:
		return string(s)
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}

func asStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return append([]string{}, s...)
	case []any:
		out := make([]string, 0, len(s))
		for _, x := range s {
			out = append(out, asString(x))
		}
		return out
	case string:
		var out []string
		if json.Unmarshal([]byte(s), &out) == nil {
			return out
		}
	}
	return []string{}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	}
	return 0
}

func asMetrics(v any) models.Metrics {
	switch m := v.(type) {
	case models.Metrics:
		return m
	case *models.Metrics:
		if m != nil {
			return *m
		}
	case map[string]any:
		return models.Metrics{
			Users:  int(asFloat(m["users"])),
			Rating: asFloat(m["rating"]),
			Uptime: asFloat(m["uptime"]),
		}
	case string:
		return metricsFromJSON([]byte(m))
	case []byte:
		return metricsFromJSON(m)
	}
	return models.Metrics{}
}

func metricsFromJSON(b []byte) models.Metrics {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return models.Metrics{}
	}
	return asMetrics(raw)
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t != nil {
			return *t
		}
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
