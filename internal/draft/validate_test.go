package draft

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/imyashkale/mcphub/internal/models"
)

func TestValidateListing_Metrics(t *testing.T) {
	tests := []struct {
		name    string
		metrics models.Metrics
		wantErr string
	}{
		{name: "defaults", metrics: models.Metrics{Uptime: models.DefaultUptime}},
		{name: "upper bounds", metrics: models.Metrics{Users: 1 << 20, Rating: MaxRating, Uptime: 100}},
		{name: "all zero", metrics: models.Metrics{}},
		{name: "negative users", metrics: models.Metrics{Users: -5}, wantErr: "Users cannot be negative"},
		{name: "rating above scale", metrics: models.Metrics{Rating: 42}, wantErr: "Rating must be between 0 and 5"},
		{name: "negative rating", metrics: models.Metrics{Rating: -0.5}, wantErr: "Rating must be between 0 and 5"},
		{name: "uptime above 100", metrics: models.Metrics{Uptime: 250}, wantErr: "Uptime must be a percentage between 0 and 100"},
		{name: "negative uptime", metrics: models.Metrics{Uptime: -1}, wantErr: "Uptime must be a percentage between 0 and 100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := models.NewServerListing("owner")
			l.Name = "Weather"
			l.Description = "Forecasts"
			l.Metrics = tt.metrics

			fields := ValidateListing(l)
			if tt.wantErr == "" {
				assert.Nil(t, fields)
				return
			}
			assert.Equal(t, map[string]string{FieldMetrics: tt.wantErr}, fields)
		})
	}
}
