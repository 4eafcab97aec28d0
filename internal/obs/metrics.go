// Package obs holds the prometheus metrics for the bridge.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsStartedTotal  = promauto.NewCounter(prometheus.CounterOpts{Name: "rdbridge_sessions_started_total", Help: "Session workers started"})
	SessionsEndedTotal    = promauto.NewCounter(prometheus.CounterOpts{Name: "rdbridge_sessions_ended_total", Help: "Sessions ended (any reason)"})
	SessionConnected      = promauto.NewGauge(prometheus.GaugeOpts{Name: "rdbridge_session_connected", Help: "1 while a session is connected"})
	FramesTotal           = promauto.NewCounter(prometheus.CounterOpts{Name: "rdbridge_frames_total", Help: "Framebuffer updates delivered to the host"})
	ClipboardFormatLists  = promauto.NewCounter(prometheus.CounterOpts{Name: "rdbridge_clipboard_format_lists_total", Help: "Format lists advertised to the server"})
	ClipboardDataServed   = promauto.NewCounter(prometheus.CounterOpts{Name: "rdbridge_clipboard_data_served_total", Help: "Data responses served to the server"})
	ClipboardDataReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "rdbridge_clipboard_data_received_total", Help: "Server clipboard payloads written locally"})
	ErrorsTotal           = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rdbridge_errors_total", Help: "Errors by type"}, []string{"type"})
)
