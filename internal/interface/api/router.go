package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/zinrai/ddi-ipam-go/internal/log"
)

// NewRouter registers the API routes of h. Metrics are served from g.
func NewRouter(h *IPAMHandler, g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/networks", h.HandleNetwork)
	mux.HandleFunc("/subnets", h.HandleSubnet)
	mux.HandleFunc("/subnets/relay", h.HandleRelay)
	mux.HandleFunc("/ips", h.HandleIP)
	mux.HandleFunc("/ips/names", h.HandleNames)
	mux.HandleFunc("/servers", h.HandleServers)
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return withRequestLogger(mux)
}

// withRequestLogger attaches a logger carrying the request id to the
// request context.
func withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := log.WithModule(r.Context(), "api")
		ctx = log.WithFields(ctx, logrus.Fields{
			"request.id": uuid.New().String(),
			"method":     r.Method,
			"path":       r.URL.Path,
		})
		log.G(ctx).Debug("handling request")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
