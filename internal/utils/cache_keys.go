package utils

// Versioned cache keys so a payload shape change can't deserialize stale
// entries after a deploy.

func BuildProjectStatsCacheKey(projectID string) string {
	return "projects:stats:v1:" + projectID
}

func BuildDashboardCacheKey(userID string) string {
	return "users:dashboard:v1:" + userID
}
