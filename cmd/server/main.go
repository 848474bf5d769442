package main

import (
	"log/slog"
	"os"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"tollgate/internal/agent"
	"tollgate/internal/challenge"
	"tollgate/internal/collab"
	"tollgate/internal/config"
	"tollgate/internal/gate"
	"tollgate/internal/handlers"
	"tollgate/internal/middleware"
	"tollgate/internal/store"
	"tollgate/internal/telemetry"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	st, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	registry := telemetry.NewRegistry()
	policies := collab.NewPolicyClient(cfg.PolicyAPIURL, cfg.SiteID, registry)
	reporter := collab.NewReporter(cfg.ViolationSinkURL, registry)
	facilitator := collab.NewFacilitator(cfg.FacilitatorURL, registry)
	verifier := agent.NewVerifier(cfg.DNSServer)

	builder := challenge.NewBuilder(cfg.PayToAddress, cfg.Network, cfg.Asset, cfg.BaseURL, st)
	siteFiles := handlers.NewSiteFiles(cfg.RobotsFile)
	engine := gate.NewEngine(cfg.SiteID, builder, policies, reporter, siteFiles, verifier)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(middleware.RequestContext())

	paymentGate := middleware.PaymentGate(middleware.GateDeps{
		Engine:       engine,
		Store:        st,
		Facilitator:  facilitator,
		Limiter:      middleware.NewVerifyLimiter(),
		AdminToken:   cfg.AdminToken,
		DiscoveryURL: cfg.BaseURL + "/.well-known/402.json",
		Currency:     "USDC",
	})

	contentHandler := handlers.NewContentHandler(st)
	discoveryHandler := handlers.NewDiscoveryHandler(st, builder)
	healthHandler := handlers.NewHealthHandler(st, registry)

	router.GET("/go/health", healthHandler.HealthCheck)
	router.GET("/robots.txt", siteFiles.RobotsTxt)
	router.GET("/.well-known/402.json", discoveryHandler.WellKnown)

	router.GET("/content/:slug", paymentGate, contentHandler.Get)
	router.POST("/content/:slug", paymentGate, contentHandler.Get)
	router.HEAD("/content/:slug", paymentGate, contentHandler.Get)

	slog.Info("Gate server starting",
		"port", cfg.Port,
		"site_id", cfg.SiteID,
		"network", cfg.Network,
		"payee_configured", cfg.PayToAddress != "",
	)
	if err := router.Run(":" + cfg.Port); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

// openStore picks Postgres when DATABASE_URL is set, otherwise the
// in-memory store with demo content.
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		return store.Connect(cfg.DatabaseURL)
	}

	slog.Warn("DATABASE_URL not set, using in-memory store")
	mem := store.NewMemory()
	mem.Seed(store.Resource{
		ID:        "demo-1",
		Slug:      "sample-article",
		Title:     "Sample Article",
		Body:      "<p>This is gated demo content.</p>",
		Protected: true,
		Price:     "0.10",
	})
	mem.Seed(store.Resource{
		ID:    "demo-2",
		Slug:  "free-article",
		Title: "Free Article",
		Body:  "<p>This content is free for everyone.</p>",
	})
	return mem, nil
}
