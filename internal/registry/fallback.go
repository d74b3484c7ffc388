package registry

import (
	"time"

	"github.com/bang0930/mcp-web/internal/models"
)

// seedEpoch anchors the seed timestamps so the fallback set is identical on
// every call.
var seedEpoch = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

type seed struct {
	id         int64
	name       string
	slug       string
	status     models.ProjectStatus
	age        time.Duration
	url        string
	serviceID  string
	instanceID string
}

var seeds = []seed{
	{1, "E-commerce API", "ecommerce-api", models.ProjectStatusDeployed, 2 * time.Hour, "https://api.ecommerce.launcha.cloud", "svc-1", "vm-123456"},
	{2, "User Dashboard", "user-dashboard", models.ProjectStatusBuilding, 5 * time.Minute, "", "", ""},
	{3, "Payment Gateway", "payment-gateway", models.ProjectStatusDeployed, 24 * time.Hour, "https://payment.launcha.cloud", "svc-3", "vm-234567"},
	{4, "Analytics Service", "analytics-service", models.ProjectStatusError, 3 * time.Hour, "", "", ""},
	{5, "Auth Service", "auth-service", models.ProjectStatusDeployed, 6 * time.Hour, "https://auth.launcha.cloud", "svc-5", "vm-345678"},
	{6, "Notification Service", "notification-service", models.ProjectStatusStopped, 48 * time.Hour, "", "", ""},
}

// FallbackProjects returns a fresh copy of the fixed sample list.
func FallbackProjects() []models.Project {
	out := make([]models.Project, 0, len(seeds))
	for _, s := range seeds {
		deployed := seedEpoch.Add(-s.age)
		created := deployed.Add(-7 * 24 * time.Hour)
		out = append(out, models.Project{
			ID:             s.id,
			Name:           s.name,
			Repository:     "https://github.com/company/" + s.slug,
			Status:         s.status,
			LastDeployment: models.NewTimestamp(deployed),
			URL:            models.StringPtr(s.url),
			ServiceID:      models.StringPtr(s.serviceID),
			InstanceID:     models.StringPtr(s.instanceID),
			CreatedAt:      models.Timestamp{Time: created},
			UpdatedAt:      models.Timestamp{Time: deployed},
		})
	}
	return out
}
