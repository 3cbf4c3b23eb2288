package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "rate_limit_allowed_total", Help: "Number of allowed websocket upgrades by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "rate_limit_rejected_total", Help: "Number of rejected websocket upgrades by limiter type."},
		[]string{"limiter"},
	)

	RoomsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "collab", Name: "rooms_active", Help: "Rooms with at least one bound connection."},
	)
	ParticipantsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "collab", Name: "participants_active", Help: "Participants listed across all rooms."},
	)
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "collab", Name: "connections_active", Help: "Open websocket connections."},
	)

	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "events_received_total", Help: "Inbound protocol events by event name."},
		[]string{"event"},
	)
	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "events_dropped_total", Help: "Inbound protocol events dropped by reason."},
		[]string{"reason"},
	)
	FramesBroadcast = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "frames_broadcast_total", Help: "Outbound frames enqueued by event name."},
		[]string{"event"},
	)
	SlowConsumers = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "collab", Name: "slow_consumers_total", Help: "Connections closed because their send buffer overflowed."},
	)

	StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "store_operations_total", Help: "Document store operations by op and result."},
		[]string{"op", "result"},
	)
	ArchiveWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "archive_writes_total", Help: "Snapshot archive writes by result."},
		[]string{"result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(RoomsActive)
	reg.MustRegister(ParticipantsActive)
	reg.MustRegister(ConnectionsActive)
	reg.MustRegister(EventsReceived)
	reg.MustRegister(EventsDropped)
	reg.MustRegister(FramesBroadcast)
	reg.MustRegister(SlowConsumers)
	reg.MustRegister(StoreOperations)
	reg.MustRegister(ArchiveWrites)
}
