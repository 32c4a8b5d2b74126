package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"bridged/internal/events"
	"bridged/pkg/types"
)

// Service defines the bridge operations required by the control API.
type Service interface {
	Chat(ctx context.Context, req types.ChatRequest) (*types.ChatReply, error)
	Status() types.StatusResponse
	Relay(ctx context.Context, method, path string, payload map[string]any) (json.RawMessage, error)
	Settings() map[string]string
	SaveSettings(vals map[string]string) error
	StartSwitch(ctx context.Context, model string) error
	SwitchStatus() types.SwitchStatus
	Subscribe() (<-chan events.Event, func())
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
		var req types.ChatRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			writeJSONError(w, http.StatusBadRequest, "message is required")
			return
		}
		lvl := requestLogLevel(r)
		start := time.Now()
		// Join server base context with request context so shutdown cancels waits too.
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		reply, err := svc.Chat(joinedCtx, req)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := statusFromErr(err)
			writeJSONError(w, status, err.Error())
			if lvl >= LevelInfo && zlog != nil {
				z := zlog.Info().Int("status", status).Dur("dur", time.Since(start))
				if rid := middleware.GetReqID(r.Context()); rid != "" {
					z = z.Str("request_id", rid)
				}
				z.Err(err).Msg("chat end")
			}
			return
		}
		writeJSON(w, reply)
		if lvl >= LevelInfo && zlog != nil {
			z := zlog.Info().Int("status", 200).Dur("dur", time.Since(start))
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Msg("chat end")
		}
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	r.Post("/relay", func(w http.ResponseWriter, r *http.Request) {
		var req types.RelayRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if !strings.HasPrefix(req.Path, "/") {
			writeJSONError(w, http.StatusBadRequest, "path must start with /")
			return
		}
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		raw, err := svc.Relay(joinedCtx, req.Method, req.Path, req.Payload)
		if err != nil {
			writeJSONError(w, statusFromErr(err), err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	})

	r.Get("/settings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"settings": svc.Settings()})
	})

	r.Put("/settings", func(w http.ResponseWriter, r *http.Request) {
		var vals map[string]string
		if !decodeJSON(w, r, &vals) {
			return
		}
		if len(vals) == 0 {
			writeJSONError(w, http.StatusBadRequest, "empty settings payload")
			return
		}
		if err := svc.SaveSettings(vals); err != nil {
			writeJSONError(w, statusFromErr(err), err.Error())
			return
		}
		writeJSON(w, map[string]any{"settings": svc.Settings()})
	})

	r.Post("/model/switch", func(w http.ResponseWriter, r *http.Request) {
		var req types.SwitchRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Model) == "" {
			writeJSONError(w, http.StatusBadRequest, "model is required")
			return
		}
		if err := svc.StartSwitch(serverBaseCtx, req.Model); err != nil {
			writeJSONError(w, statusFromErr(err), err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(svc.SwitchStatus())
	})

	r.Get("/model/switch", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.SwitchStatus())
	})

	// NDJSON stream of fire-and-forget notifications for the UI shell.
	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}
		ch, cancelSub := svc.Subscribe()
		defer cancelSub()
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		enc := json.NewEncoder(w)
		for {
			select {
			case <-joinedCtx.Done():
				return
			case ev := <-ch:
				n := types.Notification{Name: ev.Name, Fields: ev.Fields, Time: time.Now().Unix()}
				if err := enc.Encode(n); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// decodeJSON enforces content type and body size, reporting 4xx on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
