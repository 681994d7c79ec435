// Package server implements the MediaStore HTTP server and route table.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mediastore/mediastore/internal/auth"
	"github.com/mediastore/mediastore/internal/config"
	"github.com/mediastore/mediastore/internal/handlers"
	"github.com/mediastore/mediastore/internal/storage"
)

// Pinger probes an upstream dependency, used by the external health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the MediaStore HTTP server.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	gateway    *handlers.Gateway
	store      storage.ObjectStore
	collection Pinger
	httpServer *http.Server
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthOutput is the Huma output struct for the health check endpoint.
type HealthOutput struct {
	Body HealthBody
}

// New creates a Server and wires all gateway routes on the Chi router with
// the Huma API. collection may be nil when external probing is disabled.
func New(cfg *config.Config, gateway *handlers.Gateway, store storage.ObjectStore, collection Pinger) *Server {
	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("MediaStore API", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:        cfg,
		router:     router,
		api:        api,
		gateway:    gateway,
		store:      store,
		collection: collection,
	}
	s.registerRoutes()
	return s
}

// ListenAndServe starts the HTTP server on the given address.
// Middleware chain: metricsMiddleware -> commonHeaders -> auth -> router.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	return s.httpServer.ListenAndServe()
}

// Handler returns the fully wrapped handler chain, used by tests.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router
	handler = auth.Middleware(s.cfg.Auth.StaticToken)(handler)
	handler = commonHeaders(handler)
	handler = metricsMiddleware(handler)
	return handler
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes configures all routes on the Chi router. Huma owns /health,
// /docs, and /openapi.json; everything else is explicit.
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the MediaStore gateway, probing the object store and collection service when external checks are enabled.",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		if s.cfg.Health.ProbeExternal {
			if err := s.store.HealthCheck(ctx); err != nil {
				return nil, huma.Error503ServiceUnavailable("object store unreachable: " + err.Error())
			}
			if s.collection != nil {
				if err := s.collection.Ping(ctx); err != nil {
					return nil, huma.Error503ServiceUnavailable("collection service unreachable: " + err.Error())
				}
			}
		}
		return &HealthOutput{Body: HealthBody{Status: "ok"}}, nil
	})

	// Register HEAD /health separately (Huma only does one method per registration).
	s.router.Head("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})

	s.router.Handle("/metrics", promhttp.Handler())

	// Published API document under the name deployments expect.
	s.router.Get("/spec/mediastore-api.json", s.serveSpec)

	s.router.Post("/upload", s.gateway.Upload)
	s.router.Post("/upload/transcode", s.gateway.UploadTranscode)
	s.router.Post("/upload/*", s.gateway.UploadKey)
	s.router.Post("/upload-with-ticket", s.gateway.UploadWithTicket)
	s.router.Post("/upload-with-ticket/*", s.gateway.UploadKeyWithTicket)
	s.router.Get("/download/*", s.gateway.Download)
	s.router.Get("/download-with-ticket/*", s.gateway.DownloadWithTicket)
	s.router.Head("/download-with-ticket/*", s.gateway.HeadDownload)
	s.router.Delete("/delete", s.gateway.DeleteBulk)
	s.router.Delete("/delete/*", s.gateway.DeleteKey)
	s.router.Get("/unique/{fingerprint}", s.gateway.Unique)
}

// serveSpec writes the generated OpenAPI document.
func (s *Server) serveSpec(w http.ResponseWriter, r *http.Request) {
	data, err := json.Marshal(s.api.OpenAPI())
	if err != nil {
		http.Error(w, "rendering API document failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
