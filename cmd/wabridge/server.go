package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wabridge/internal/constants"
	"wabridge/internal/errors"
	"wabridge/internal/httputil"
	"wabridge/internal/middleware"
	"wabridge/internal/models"
	"wabridge/internal/service"
	"wabridge/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type contextKey string

const deviceContextKey contextKey = "device"

// Server wires the HTTP surface: the inbound engine webhook, the device API
// and the admin control plane.
type Server struct {
	router      *mux.Router
	logger      *logrus.Logger
	cfg         *models.Config
	processor   *service.EventProcessor
	devices     *service.DeviceService
	messages    *service.MessageService
	rateLimiter *RateLimiter
	server      *http.Server
	stopCh      chan struct{}
}

func NewServer(cfg *models.Config, processor *service.EventProcessor, devices *service.DeviceService, messages *service.MessageService, logger *logrus.Logger) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		logger:      logger,
		cfg:         cfg,
		processor:   processor,
		devices:     devices,
		messages:    messages,
		rateLimiter: NewRateLimiter(cfg.Server.RateLimitRequests, time.Duration(cfg.Server.RateLimitWindowSec)*time.Second),
		stopCh:      make(chan struct{}),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))
	s.router.Use(s.rateLimitMiddleware)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)

	// Metrics endpoint (admin only)
	s.router.Handle("/metrics", s.adminAuth(s.handleMetrics())).Methods(http.MethodGet)

	// Inbound engine events
	events := s.router.PathPrefix("/webhooks/receiver").Subrouter()
	events.Use(middleware.EventObservabilityMiddleware(s.logger))
	events.HandleFunc("", s.handleEngineEvent()).Methods(http.MethodPost)

	// Admin control plane
	admin := s.router.PathPrefix("/api/devices").Subrouter()
	admin.Handle("", s.adminAuth(s.handleCreateDevice())).Methods(http.MethodPost)
	admin.Handle("", s.adminAuth(s.handleListDevices())).Methods(http.MethodGet)
	admin.Handle("/{id:[0-9]+}", s.adminAuth(s.handleGetDevice())).Methods(http.MethodGet)
	admin.Handle("/{id:[0-9]+}", s.adminAuth(s.handleRetireDevice())).Methods(http.MethodDelete)

	// Device-scoped API, authenticated by API key
	device := s.router.PathPrefix("/api").Subrouter()
	device.Handle("/device/status", s.deviceAuth(s.handleDeviceStatus())).Methods(http.MethodGet)
	device.Handle("/device/qr", s.deviceAuth(s.handleDeviceQR())).Methods(http.MethodGet)
	device.Handle("/device/logout", s.deviceAuth(s.handleDeviceLogout())).Methods(http.MethodPost)
	device.Handle("/webhook", s.deviceAuth(s.handleWebhookInfo())).Methods(http.MethodGet)
	device.Handle("/webhook", s.deviceAuth(s.handleWebhookAction())).Methods(http.MethodPost)
	device.Handle("/messages", s.deviceAuth(s.handleGetMessages())).Methods(http.MethodGet)
	device.Handle("/messages/text", s.deviceAuth(s.handleSendText())).Methods(http.MethodPost)
	device.Handle("/messages/media", s.deviceAuth(s.handleSendMedia())).Methods(http.MethodPost)
	device.Handle("/messages/location", s.deviceAuth(s.handleSendLocation())).Methods(http.MethodPost)
	device.Handle("/messages/contact", s.deviceAuth(s.handleSendContact())).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	go s.rateLimiter.startCleanup(s.stopCh, time.Duration(s.cfg.Server.RateLimitWindowSec)*time.Second)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stopCh)
	return s.server.Shutdown(ctx)
}

// rateLimitMiddleware applies the per-IP sliding window to every route
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.GetClientIP(r)
		if !s.rateLimiter.Allow(ip) {
			err := errors.NewRateLimitError(s.cfg.Server.RateLimitRequests,
				fmt.Sprintf("%ds", s.cfg.Server.RateLimitWindowSec))
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminAuth guards control-plane endpoints with the configured bearer token.
// An empty configured token disables the check outside production; config
// validation already refuses that combination in production.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.Server.AdminToken
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		provided, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			s.writeError(w, r, errors.NewAuthError("invalid admin token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// deviceAuth resolves the device from the X-Api-Key header and stores it in
// the request context.
func (s *Server) deviceAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-Api-Key")
		device, err := s.devices.AuthenticateByAPIKey(r.Context(), apiKey)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), deviceContextKey, device)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// deviceFromContext returns the authenticated device; deviceAuth guarantees
// it is present on routes that use it.
func deviceFromContext(ctx context.Context) *models.Device {
	device, _ := ctx.Value(deviceContextKey).(*models.Device)
	return device
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestInfo := tracing.GetRequestInfo(r.Context())
	statusCode := errors.HTTPStatusCode(err)

	if statusCode >= 500 {
		s.logger.WithError(err).WithFields(logrus.Fields{
			service.LogFieldRequestID: requestInfo.RequestID,
			service.LogFieldURL:       r.URL.Path,
		}).Error("Request failed")
	}

	s.writeJSON(w, statusCode, errors.ToHTTPResponse(err, requestInfo.RequestID))
}
