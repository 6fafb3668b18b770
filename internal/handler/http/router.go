package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/discounts/internal/service"
	"github.com/utafrali/discounts/pkg/health"
	"github.com/utafrali/discounts/pkg/middleware"
)

// NewRouter creates a chi router with all discount service routes registered.
func NewRouter(
	campaignService *service.CampaignService,
	discountService *service.DiscountService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("discount"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	campaignHandler := NewCampaignHandler(campaignService, logger)
	discountHandler := NewDiscountHandler(discountService, campaignService, logger)

	// Campaign administration endpoints
	r.Route("/api/v1/campaigns", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", campaignHandler.CreateCampaign)
		r.Get("/", campaignHandler.ListCampaigns)

		// Code lookup must come before /{id} to avoid conflict.
		r.Get("/code/{code}", campaignHandler.GetCampaignByCode)

		r.Get("/{id}", campaignHandler.GetCampaign)
		r.Put("/{id}", campaignHandler.UpdateCampaign)
		r.Delete("/{id}", campaignHandler.DeleteCampaign)
		r.Post("/{id}/deactivate", campaignHandler.DeactivateCampaign)
		r.Post("/{id}/apply", discountHandler.ProbeCampaign)
	})

	// Discount evaluation endpoints
	r.Route("/api/v1/discounts", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/apply", discountHandler.ApplyDiscounts)
	})

	// Order discount endpoints
	r.Route("/api/v1/orders/{orderableType}/{orderableId}", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/finalize", discountHandler.FinalizeOrder)
		r.Get("/discounts", discountHandler.ListOrderDiscounts)
	})

	// Pricing display endpoint
	r.Get("/api/v1/products/{productId}/pricing", discountHandler.ProductPricing)

	return r
}
