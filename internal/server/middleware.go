package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withMiddleware attaches a request id, enforces the body size cap, records
// request metrics and recovers panics into a 500 response.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		if s.config.Server.MaxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		log := s.logger.With(map[string]interface{}{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
		})

		defer func() {
			if p := recover(); p != nil {
				log.Error("handler panicked", map[string]interface{}{"panic": fmt.Sprintf("%v", p)})
				s.writeError(rec, fmt.Errorf("internal error"))
			}
			duration := time.Since(start)
			if s.obs != nil {
				s.obs.RecordRequestProcessed(r.Context(), r.URL.Path, strconv.Itoa(rec.status))
				s.obs.RecordRequestDuration(r.Context(), duration, r.URL.Path)
			}
			log.Info("request handled", map[string]interface{}{
				"status":      rec.status,
				"duration_ms": duration.Milliseconds(),
			})
		}()

		next.ServeHTTP(rec, r)
	})
}
