// Package metrics expose les compteurs Prometheus de la boutique.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

type Metrics struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	checkouts *prometheus.CounterVec
	orderVal  prometheus.Histogram
	chats     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cedra_http_requests_total",
			Help: "Requêtes HTTP par route et statut.",
		}, []string{"method", "route", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cedra_http_request_duration_seconds",
			Help:    "Durée des requêtes HTTP.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cedra_checkouts_total",
			Help: "Tentatives de commande par issue.",
		}, []string{"result"}),
		orderVal: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cedra_order_value_euros",
			Help:    "Montant des commandes créées.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		chats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cedra_chat_requests_total",
			Help: "Appels au proxy IA par statut.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.durations, m.checkouts, m.orderVal, m.chats,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware mesure chaque requête, étiquetée par le motif de route gin
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.durations.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Checkout enregistre l'issue d'une commande: "created", "empty", "no_items", "failed"
func (m *Metrics) Checkout(result string, total decimal.Decimal) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(result).Inc()
	if result == "created" {
		f, _ := total.Float64()
		m.orderVal.Observe(f)
	}
}

func (m *Metrics) Chat(status string) {
	if m == nil {
		return
	}
	m.chats.WithLabelValues(status).Inc()
}
