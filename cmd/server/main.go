package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/dpup/prefab"
	"github.com/joho/godotenv"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dpup/intel-overlay/server/internal/clients/drawtools"
	"github.com/dpup/intel-overlay/server/internal/clients/linkfeed"
	"github.com/dpup/intel-overlay/server/internal/config"
	"github.com/dpup/intel-overlay/server/internal/handlers"
	"github.com/dpup/intel-overlay/server/internal/metrics"
	"github.com/dpup/intel-overlay/server/internal/services"
)

func main() {
	// Local development keeps PF__ overrides in .env
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	// Load configuration using Prefab's config system
	appConfig := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	planParser := drawtools.NewParser(drawtools.WithAllowedHosts(appConfig.Planner.PlanURLHosts...))
	planner := services.NewPlannerService(&appConfig.Planner, planParser)
	defer planner.Close()
	planner.StartCleanup(ctx)

	offsets := services.NewOffsetService(&appConfig.Offset)

	log.Printf("Intel overlay server starting")
	log.Printf("Default map type: %s, session TTL: %v", appConfig.Offset.MapType(), appConfig.Planner.SessionTTL)

	// Stands in for the intel map's data refresh so stale highlights get pruned
	periodicRefresh := services.NewPeriodicRefreshService(planner, &appConfig.Planner)
	if err := periodicRefresh.StartPeriodicRefresh(ctx); err != nil {
		log.Printf("Failed to start periodic refresh: %v", err)
	}
	defer periodicRefresh.Stop()

	if appConfig.Feed.NatsURL != "" {
		feed, err := linkfeed.Connect(appConfig.Feed, planner)
		if err != nil {
			log.Fatalf("Failed to connect link feed: %v", err)
		}
		defer feed.Close()
		if err := feed.Start(ctx); err != nil {
			log.Fatalf("Failed to start link feed: %v", err)
		}
	} else {
		log.Printf("Link feed disabled (feed.nats_url not set)")
	}

	router := handlers.NewRouter(appConfig.Server, planner, offsets)

	// Server configuration (port, etc.) will be loaded from prefab.yaml/env vars
	server := prefab.New(
		prefab.WithGRPCReflection(),
		prefab.WithHTTPHandlerFunc("/api/v1/", router.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/metrics", metrics.Handler().ServeHTTP),
		prefab.WithHTTPHandlerFunc("/", homepageHandler),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server.ServiceRegistrar(), healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Start the server (blocks until shutdown)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// loadConfig loads configuration using Prefab's config system
// Configuration is loaded from prefab.yaml and environment variables with PF__ prefix
func loadConfig() *config.Config {
	appConfig := config.DefaultConfig()

	// Unmarshal specific sections over the defaults using exact key paths
	sections := map[string]interface{}{
		"api":     &appConfig.Server,
		"planner": &appConfig.Planner,
		"offset":  &appConfig.Offset,
		"feed":    &appConfig.Feed,
	}
	for key, target := range sections {
		if err := prefab.Config.Unmarshal(key, target); err != nil {
			log.Fatalf("Failed to unmarshal %s section: %v", key, err)
		}
	}

	if err := appConfig.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return appConfig
}

// homepageHandler serves a simple HTML homepage at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	// Only handle the root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	html := `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>intel-overlay</title>
    <style>
        body {
            font-family: 'Courier New', Consolas, monospace;
            background: #000;
            color: #0f0;
            padding: 20px;
            line-height: 1.4;
        }
        a { color: #0ff; text-decoration: none; }
        a:hover { text-decoration: underline; }
        pre { margin: 0; }
        .header { color: #ff0; }
    </style>
</head>
<body>
<pre>
<span class="header">intel-overlay</span>

Planning overlay for the Ingress intel map: China tile offset correction
and done-links highlighting against drawn plans.

<span class="header">Sessions API:</span>
  POST   /api/v1/sessions                          - Open a planning session
  GET    /api/v1/sessions/{id}                     - Session summary
  PUT    /api/v1/sessions/{id}/activation          - Show or hide done links
  POST   /api/v1/sessions/{id}/shapes              - Add a drawn shape
  PUT    /api/v1/sessions/{id}/shapes              - Replace all shapes
  POST   /api/v1/sessions/{id}/shapes/drawtools    - Import a draw-tools plan
  POST   /api/v1/sessions/{id}/links               - Merge live links
  DELETE /api/v1/sessions/{id}/links/{guid}        - Drop a live link
  POST   /api/v1/sessions/{id}/refresh             - Map data refresh finished
  GET    /api/v1/sessions/{id}/highlights          - Done links
  GET    /api/v1/sessions/{id}/highlights.kml      - Done links as KML

<span class="header">Offset API:</span>
  <a href="/api/v1/offset?lat=39.9&lng=116.4">GET /api/v1/offset?lat=&lng=&type=</a>  - WGS-84 to tile coordinates
  POST   /api/v1/offset/viewport                   - Base map center for an overlay move
  POST   /api/v1/offset/reverse                    - Tile coordinates back to WGS-84

<span class="header">Operations:</span>
  <a href="/metrics">GET /metrics</a>                              - Prometheus metrics
</pre>
</body>
</html>`

	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Error("Failed to write homepage HTML", "error", err)
	}
}
