package entity

// HealthCheckResponse is the /health payload. Status is false when any check fails.
type HealthCheckResponse struct {
	Status  bool         `json:"status" example:"true"`
	Message string       `json:"message" example:"success"`
	Version string       `json:"version" example:"0.1.0"`
	Checks  HealthChecks `json:"checks"`
}

// HealthChecks reports the storage backend and the event bus backend.
// The in-process bus has nothing to probe and is always healthy.
type HealthChecks struct {
	Storage HealthCheckItem `json:"storage"`
	Bus     HealthCheckItem `json:"bus"`
}

type HealthCheckItem struct {
	Status bool   `json:"status" example:"true"`
	Driver string `json:"driver" example:"postgres"`
	Error  string `json:"error,omitempty" example:"storage unreachable"`
}
