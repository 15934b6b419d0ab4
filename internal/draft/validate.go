package draft

import (
	"net/url"
	"strings"

	"github.com/imyashkale/mcphub/internal/models"
)

const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldEndpointUrl = "endpointUrl"
	FieldStatus      = "status"
	FieldMetrics     = "metrics"
)

// MaxRating is the top of the rating scale
const MaxRating = 5

// ValidateListing runs the checks made before any save reaches the store
func ValidateListing(l models.ServerListing) map[string]string {
	fields := map[string]string{}

	if strings.TrimSpace(l.Name) == "" {
		fields[FieldName] = "Name is required"
	}
	if strings.TrimSpace(l.Description) == "" {
		fields[FieldDescription] = "Description is required"
	}
	if l.EndpointUrl != "" && !IsValidURL(l.EndpointUrl) {
		fields[FieldEndpointUrl] = "Please enter a valid URL"
	}
	if l.Status != "" && !l.Status.Valid() {
		fields[FieldStatus] = "Status must be active, inactive or deprecated"
	}
	if msg := checkMetrics(l.Metrics); msg != "" {
		fields[FieldMetrics] = msg
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

// IsValidURL reports whether raw is an absolute URL with scheme and host
func IsValidURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func checkMetrics(m models.Metrics) string {
	switch {
	case m.Users < 0:
		return "Users cannot be negative"
	case m.Rating < 0 || m.Rating > MaxRating:
		return "Rating must be between 0 and 5"
	case m.Uptime < 0 || m.Uptime > 100:
		return "Uptime must be a percentage between 0 and 100"
	}
	return ""
}
