package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serverchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	UsersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "serverchat_users_created_total",
			Help: "Total users created",
		},
	)

	ChatsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "serverchat_chats_created_total",
			Help: "Total chats created",
		},
	)

	MessagesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverchat_messages_persisted_total",
			Help: "Total messages persisted",
		},
		[]string{"source"}, // "socket" or "rest"
	)

	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "serverchat_persist_failures_total",
			Help: "Total messages that failed to persist",
		},
	)

	// Realtime metrics
	ConnectedSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "serverchat_connected_sessions",
			Help: "Currently connected realtime sessions",
		},
	)

	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "serverchat_active_rooms",
			Help: "Rooms with at least one member",
		},
	)

	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverchat_events_received_total",
			Help: "Total inbound realtime events",
		},
		[]string{"event"},
	)

	DeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverchat_delivery_failures_total",
			Help: "Total outbound frames that could not be queued",
		},
		[]string{"reason"}, // "closed" or "buffer_full"
	)

	FanoutSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "serverchat_fanout_recipients",
			Help:    "Recipients per broadcast",
			Buckets: []float64{0, 1, 2, 5, 10, 50, 100, 500},
		},
	)

	SideChannelFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverchat_side_channel_failures_total",
			Help: "Total failed message hooks",
		},
		[]string{"hook"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverchat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverchat_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "serverchat_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	DatabaseLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serverchat_database_latency_seconds",
			Help:    "Relational store query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
		[]string{"backend"}, // "postgres" or "sqlite"
	)
)
