package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DialsTotal       = promauto.NewCounter(prometheus.CounterOpts{Name: "marsclient_dials_total", Help: "WebSocket dial attempts"})
	ReconnectsTotal  = promauto.NewCounter(prometheus.CounterOpts{Name: "marsclient_reconnects_total", Help: "Automatic transport reconnects after loss"})
	MessagesInTotal  = promauto.NewCounter(prometheus.CounterOpts{Name: "marsclient_messages_in_total", Help: "Envelopes received from the server"})
	MessagesOutTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "marsclient_messages_out_total", Help: "Envelopes sent to the server"})
	EventsTotal      = promauto.NewCounterVec(prometheus.CounterOpts{Name: "marsclient_events_total", Help: "Events fanned out to subscribers by kind"}, []string{"kind"})
	Connected        = promauto.NewGauge(prometheus.GaugeOpts{Name: "marsclient_connected", Help: "1 while the transport is established"})
	PendingIdentity  = promauto.NewGauge(prometheus.GaugeOpts{Name: "marsclient_pending_identity_requests", Help: "Join/reconnect requests awaiting confirmation"})
)
