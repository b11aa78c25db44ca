package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"hmsinventory/m/domain"
	"hmsinventory/m/internal/inventory"
)

type ctxKey string

const ctxActor ctxKey = "actor"

type Options struct {
	Secret string
	Logger zerolog.Logger
	// AlertHorizonDays is used by /alerts/expiring when no days parameter is given.
	AlertHorizonDays int
	CORSOrigins      []string
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	svc     *inventory.Service
	secret  string
	log     zerolog.Logger
	horizon int
	origins []string
}

// New constructs a Handler.
func New(svc *inventory.Service, opts Options) *Handler {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Handler{
		svc:     svc,
		secret:  opts.Secret,
		log:     opts.Logger,
		horizon: opts.AlertHorizonDays,
		origins: origins,
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.health)

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/items", func(r chi.Router) {
			r.Post("/", h.createItem)
			r.Get("/", h.listItems)
			r.Get("/{id}", h.getItem)
			r.Put("/{id}", h.updateItem)
			r.Post("/{id}/deactivate", h.deactivateItem)
			r.Post("/{id}/activate", h.activateItem)
			r.Get("/{id}/batches", h.listBatches)
			r.Get("/{id}/movements", h.listMovements)
			r.Get("/{id}/reconcile", h.reconcileItem)
		})

		pr.Route("/stock", func(r chi.Router) {
			r.Post("/receive", h.receiveStock)
			r.Post("/dispense", h.dispenseStock)
			r.Post("/adjust", h.adjustStock)
			r.Post("/return", h.returnStock)
			r.Post("/batches/{id}/expire", h.expireBatch)
		})

		pr.Get("/movements", h.movementsByReference)

		pr.Route("/alerts", func(r chi.Router) {
			r.Get("/low-stock", h.lowStockAlerts)
			r.Get("/expiring", h.expiringAlerts)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Header().Set("X-Request-ID", middleware.GetReqID(r.Context()))
			start := time.Now()
			defer func() {
				log.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("latency", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// Authentication helpers

type authClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken issues an HS256 token whose subject is the acting user.
func GenerateToken(secret, actorID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := authClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok || strings.TrimSpace(claims.Subject) == "" {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		actor := domain.Actor{ID: claims.Subject, Role: domain.Role(claims.Role)}
		ctx := context.WithValue(r.Context(), ctxActor, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireActor writes 401/403 and returns false when the request's actor
// fails allowed.
func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request, allowed func(domain.Actor) bool) bool {
	actor, ok := r.Context().Value(ctxActor).(domain.Actor)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing actor")
		return false
	}
	if !allowed(actor) {
		respondError(w, http.StatusForbidden, "insufficient permissions")
		return false
	}
	return true
}

func actorID(r *http.Request) string {
	actor, _ := r.Context().Value(ctxActor).(domain.Actor)
	return actor.ID
}

// Helpers

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError renders domain errors with their kind and details and
// hides anything else behind a 500.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		respondJSON(w, statusFor(derr.Kind), derr)
		return
	}
	h.log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	respondError(w, http.StatusInternalServerError, "internal error")
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation, domain.KindInvalidQuantity, domain.KindInvalidExpiry, domain.KindInvalidMovementType:
		return http.StatusBadRequest
	case domain.KindUnknownItem, domain.KindUnknownBatch:
		return http.StatusNotFound
	case domain.KindInsufficientStock, domain.KindInsufficientBatchStock, domain.KindConcurrencyConflict,
		domain.KindInactiveItem, domain.KindExpiredBatch, domain.KindDuplicateItem:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// intParam reads a non-negative integer query parameter.
func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.Validation("%s must be a non-negative integer", name)
	}
	return n, nil
}
