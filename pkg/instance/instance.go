package instance

import (
	"os"

	"github.com/angelmondragon/retailops-backend/pkg/env"
)

// ID identifies this process in lock values and startup logs. Platform
// provided names win over the hostname.
func ID() string {
	fallback := "local"
	if host, err := os.Hostname(); err == nil && host != "" {
		fallback = host
	}
	return env.First(fallback, "RETAILOPS_INSTANCE_ID", "DYNO", "HOSTNAME")
}
