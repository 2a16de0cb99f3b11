package controlplane

// Config contains configuration for the control plane server
type Config struct {
	Addr      string // Address to bind the control plane server
	AuthToken string // Access token for the control plane server, empty disables auth
	Mode      string // Run mode reported by the status endpoint
	RateLimit string // Per client rate in limiter notation, defaults to 10-S
}
