package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orgforge/divisions/pkg/configuration"
	"github.com/orgforge/divisions/pkg/constants"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestID(r *http.Request, header string) string {
	if id := r.Header.Get(header); id != "" {
		return id
	}
	return uuid.New().String()
}

func realIP(r *http.Request, header string) string {
	if ip := r.Header.Get(header); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// WithLogger attaches a request-scoped logrus entry to the context, opens a
// root span when tracing is enabled, recovers panics into a JSON 500 response
// and logs every request with its duration and status.
func WithLogger(logger *logrus.Logger, conf *configuration.Configuration) mux.MiddlewareFunc {
	var tracer trace.Tracer
	if conf.OpenTelemetry.Enabled {
		tracer = otel.Tracer(conf.OpenTelemetry.ServiceName)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := requestID(r, conf.RequestIDHeader)

			entry := logger.WithFields(logrus.Fields{
				"request-id": reqID,
				"path":       r.RequestURI,
				"method":     r.Method,
				"host":       r.Host,
				"ip":         realIP(r, conf.RealIPHeader),
			})

			ctx := r.Context()
			ctx = context.WithValue(ctx, constants.LoggerKey, entry)
			ctx = context.WithValue(ctx, constants.RequestStart, start)

			var span trace.Span
			if tracer != nil {
				ctx, span = tracer.Start(ctx, r.Method+" "+r.URL.Path)
				span.SetAttributes(
					attribute.String("http.request_id", reqID),
					attribute.String("http.method", r.Method),
					attribute.String("http.target", r.URL.Path),
				)
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if rvr := recover(); rvr != nil {
					entry.WithFields(logrus.Fields{
						"panic": rvr,
						"stack": string(debug.Stack()),
					}).Error("panic while handling request")
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "INTERNAL",
						"message": "internal server error",
					})
					rec.status = http.StatusInternalServerError
				}
				if span != nil {
					span.SetAttributes(attribute.Int("http.status_code", rec.status))
					span.End()
				}
				entry.WithFields(logrus.Fields{
					"duration": time.Since(start).String(),
					"status":   rec.status,
				}).Info("request completed")
			}()

			next.ServeHTTP(rec, r.WithContext(ctx))
		})
	}
}
