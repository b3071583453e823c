package leads

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"adecis_backend/internal/billing"
	"adecis_backend/internal/events"
	apphttp "adecis_backend/internal/http"
	"adecis_backend/internal/installations"
	"adecis_backend/internal/profiles"
	"adecis_backend/platform/logger"
	"adecis_backend/platform/validator"
)

// Module wires the leads domain: repository, reply/feedback service, and
// HTTP handlers.
type Module struct {
	handler *Handler

	// Repo is exported for the ingestion module, which inserts scored leads.
	Repo *Repository
}

// NewModule creates the leads module with all dependencies wired.
func NewModule(
	pool *pgxpool.Pool,
	val *validator.Validator,
	guard *billing.Guard,
	tokens TokenSource,
	clientFor func(token string) MessagePoster,
	profileRepo *profiles.Repository,
	installRepo *installations.Repository,
	bus events.Bus,
	log *logger.Logger,
) *Module {
	repo := NewRepository(pool)
	svc := NewService(repo, guard, tokens, clientFor, profileRepo, installRepo, profileRepo, bus, log)
	h := NewHandler(svc, val)

	return &Module{handler: h, Repo: repo}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "leads"
}

// RegisterRoutes registers the module's routes under /api/v1/leads.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	leads := ctx.Protected.Group("/leads")
	m.handler.RegisterRoutes(leads)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
