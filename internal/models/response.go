package models

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Backend Backend           `json:"backend"`
	Checks  map[string]string `json:"checks,omitempty"`
}
