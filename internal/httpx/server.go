package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(log *zap.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(log), middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

type registrar interface {
	Register(r chi.Router)
}

// streamer is implemented by handlers with long-lived routes.
type streamer interface {
	RegisterStreams(r chi.Router)
}

// Mount registers handlers behind authn. Regular routes are cut off after
// timeout; stream routes live until the client goes away.
func Mount(r chi.Router, authn func(http.Handler) http.Handler, timeout time.Duration, hs ...registrar) {
	r.Group(func(r chi.Router) {
		r.Use(authn, middleware.Timeout(timeout))
		for _, h := range hs {
			h.Register(r)
		}
	})
	r.Group(func(r chi.Router) {
		r.Use(authn)
		for _, h := range hs {
			if s, ok := h.(streamer); ok {
				s.RegisterStreams(r)
			}
		}
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	log = log.With(zap.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				log.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
