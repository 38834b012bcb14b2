package constants

// Route constants shared by routers and controllers
const (
	APIRoute     = "/api"
	APIv1Route   = "/api/v1"
	WebhookRoute = "/api/webhook"
	DocsRoute    = "/docs/api/"
	MetricsRoute = "/metrics"
)
