package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dpsmeter"

// Labels
const (
	LabelKind   = "kind"
	LabelMethod = "method"
	LabelPath   = "path"
	LabelStatus = "status"
)

// Decoder metrics
var (
	EnvelopesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "envelopes_total",
		Help:      "Trailer-terminated envelopes handed to the decoder",
	})

	EventsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_decoded_total",
		Help:      "Messages decoded by kind (damage, dot, nickname, summon, mob)",
	}, []string{LabelKind})

	UnrecognizedEnvelopes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unrecognized_envelopes_total",
		Help:      "Envelopes no parser accepted",
	})

	BrokenLengthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broken_length_recoveries_total",
		Help:      "Broken-length recovery attempts by outcome",
	}, []string{LabelKind})

	ParserPanics = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "parser_panics_total",
		Help:      "Envelopes abandoned after a recovered parser panic",
	})

	UnresolvedSkills = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unresolved_skill_codes_total",
		Help:      "Distinct skill codes that matched no canonical range",
	})
)

// Stream metrics
var (
	BufferOverflows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "buffer_overflows_total",
		Help:      "Flow buffers dropped for exceeding the size limit",
	})

	ChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_total",
		Help:      "Captured payload chunks by disposition (accepted, tls)",
	}, []string{LabelKind})

	ActiveFlows = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_flows",
		Help:      "Flows with a running worker",
	})
)

// Store metrics
var (
	StoredEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stored_events",
		Help:      "Combat events currently held by the store",
	})

	SelfDamageDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "self_damage_dropped_total",
		Help:      "Decoded events discarded because actor equals target",
	})
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Overlay API requests",
	}, []string{LabelMethod, LabelPath, LabelStatus})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Overlay API latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{LabelMethod, LabelPath})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_clients",
		Help:      "Connected live overlay clients",
	})
)
