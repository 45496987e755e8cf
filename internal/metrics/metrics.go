package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatline_messages_sent_total",
		Help: "Messages accepted for delivery.",
	})

	TranscriptionJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatline_transcription_jobs_total",
		Help: "Transcription jobs by terminal status.",
	}, []string{"status"})

	WebsocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatline_websocket_connections",
		Help: "Currently open websocket connections on this instance.",
	})
)

// RegisterOnlineUsers exposes the presence registry's online-user count
// as a gauge sampled at scrape time.
func RegisterOnlineUsers(count func() int) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "chatline_online_users",
		Help: "Users with at least one live connection.",
	}, func() float64 {
		return float64(count())
	})
}
