package ingestion

import (
	apphttp "adecis_backend/internal/http"
	"adecis_backend/internal/slack"
	"adecis_backend/platform/logger"
)

// Module wires the ingestion webhooks: Slack events, Slack interactions,
// and inbound email.
type Module struct {
	slackHandler *SlackHandler
	emailHandler *EmailHandler
	verifier     *slack.Verifier
	log          *logger.Logger
}

// NewModule creates the ingestion module.
func NewModule(
	orchestrator *Orchestrator,
	installs InstallationSource,
	feedback FeedbackStore,
	verifier *slack.Verifier,
	apiBaseURL string,
	limiter EventLimiter,
	log *logger.Logger,
) *Module {
	updaterFor := func(token string) MessageUpdater {
		return slack.NewClient(apiBaseURL, token, log)
	}
	return &Module{
		slackHandler: NewSlackHandler(orchestrator, installs, feedback, updaterFor, limiter, log),
		emailHandler: NewEmailHandler(orchestrator, log),
		verifier:     verifier,
		log:          log,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "ingestion"
}

// RegisterRoutes mounts the webhook endpoints under /api/v1/webhooks.
// The Slack endpoints sit behind signature verification; email carries no
// signature and relies on the inbound-address lookup.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	webhooks := ctx.V1.Group("/webhooks")

	slackGroup := webhooks.Group("/slack")
	slackGroup.Use(slack.VerifyMiddleware(m.verifier, m.log))
	slackGroup.POST("/events", m.slackHandler.Events)
	slackGroup.POST("/interactions", m.slackHandler.Interactions)

	webhooks.POST("/email/inbound", m.emailHandler.Inbound)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
