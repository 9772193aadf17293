// Package devserver fronts the API Gateway handler with a plain HTTP server
// for local runs, and exposes Prometheus metrics next to it.
package devserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

// ProxyHandler is satisfied by handler.Handler.
type ProxyHandler interface {
	Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)
}

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shop",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// New returns a router that serves the storefront routes through h and
// metrics from reg at /metrics.
func New(h ProxyHandler, reg *prometheus.Registry, log *slog.Logger) (http.Handler, error) {
	if h == nil {
		return nil, errors.New("devserver: handler must not be nil")
	}
	if reg == nil {
		return nil, errors.New("devserver: registry must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}

	p := &proxy{h: h, m: m, log: log}
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/", p.serve).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/products", p.serve).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/products/{id}", p.serve).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/chat", p.serve).Methods(http.MethodPost, http.MethodOptions)
	r.NotFoundHandler = http.HandlerFunc(p.serve)
	r.MethodNotAllowedHandler = http.HandlerFunc(p.serve)
	return r, nil
}

type proxy struct {
	h   ProxyHandler
	m   *metrics
	log *slog.Logger
}

func (p *proxy) serve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	route := routeTemplate(r)

	event, err := toEvent(r)
	if err != nil {
		http.Error(w, `{"error":"INVALID_INPUT","message":"request body too large"}`, http.StatusRequestEntityTooLarge)
		p.observe(route, r.Method, http.StatusRequestEntityTooLarge, start)
		return
	}

	resp, err := p.h.Handle(r.Context(), event)
	if err != nil {
		p.log.Error("handler failed", "err", err, "path", r.URL.Path)
		http.Error(w, `{"error":"INTERNAL_ERROR","message":"internal error"}`, http.StatusInternalServerError)
		p.observe(route, r.Method, http.StatusInternalServerError, start)
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	for k, vs := range resp.MultiValueHeaders {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
	p.observe(route, r.Method, resp.StatusCode, start)
}

func (p *proxy) observe(route, method string, status int, start time.Time) {
	p.m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	p.m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}

// routeTemplate keeps metric labels bounded: /products/42 counts as /products/{id}.
func routeTemplate(r *http.Request) string {
	if cur := mux.CurrentRoute(r); cur != nil {
		if tpl, err := cur.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func toEvent(r *http.Request) (events.APIGatewayProxyRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return events.APIGatewayProxyRequest{}, err
	}
	if len(body) > maxBodyBytes {
		return events.APIGatewayProxyRequest{}, errors.New("devserver: body too large")
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	query := make(map[string]string)
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}
	return events.APIGatewayProxyRequest{
		HTTPMethod:            r.Method,
		Path:                  r.URL.Path,
		Headers:               headers,
		QueryStringParameters: query,
		PathParameters:        mux.Vars(r),
		Body:                  string(body),
	}, nil
}
