package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RoomsCreated counts successful room creations.
	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fekoyaha_rooms_created_total",
		Help: "Number of rooms created.",
	})

	// MessagesPosted counts accepted client messages.
	MessagesPosted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fekoyaha_messages_posted_total",
		Help: "Number of client messages appended to a room log.",
	})

	// ActiveConnections tracks currently open WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fekoyaha_active_connections",
		Help: "Currently connected WebSocket clients across all rooms.",
	})

	// UploadsAccepted counts stored file uploads.
	UploadsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fekoyaha_uploads_accepted_total",
		Help: "Number of file uploads written to the blob store.",
	})
)

// Handler exposes Prometheus metrics at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
