// Package metrics exposes the replication engine's Prometheus
// instrumentation: a package-level registry gated by an enabled flag (InitRegistry must
// be called before any engine activity for metrics to attach; otherwise
// recording calls are no-ops), and promauto-registered collectors for the
// quantities the server and client engines touch every tick.
package metrics

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
	enabled  atomic.Bool

	framesEncoded  *prometheus.CounterVec
	framesDecoded  *prometheus.CounterVec
	dirtyPerTick   *prometheus.HistogramVec
	knownDataset   *prometheus.GaugeVec
	outboundQueue  *prometheus.GaugeVec
	rpcDispatched  *prometheus.CounterVec
	admissionTotal prometheus.Counter
	entityCreate   *prometheus.CounterVec
)

// InitRegistry installs reg (or a fresh prometheus.Registry if nil) as the
// metrics destination and registers all collectors. Call once at process
// startup; call again in tests with a fresh registry to avoid duplicate
// registration panics.
func InitRegistry(reg *prometheus.Registry) *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	registry = reg

	framesEncoded = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "entnet_frames_encoded_total",
		Help: "Total wire frames encoded, by command name.",
	}, []string{"command"})
	framesDecoded = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "entnet_frames_decoded_total",
		Help: "Total wire frames decoded, by command name.",
	}, []string{"command"})
	dirtyPerTick = promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "entnet_dirty_properties_per_tick",
		Help:    "Count of dirty properties flushed in one update cycle, by source.",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
	}, []string{"source"})
	knownDataset = promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
		Name: "entnet_known_dataset_entities",
		Help: "Number of entities present in a peer's known-dataset map.",
	}, []string{"peer_id"})
	outboundQueue = promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
		Name: "entnet_outbound_queue_depth",
		Help: "Pending outbound frames queued for a peer.",
	}, []string{"peer_id"})
	rpcDispatched = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "entnet_rpc_dispatched_total",
		Help: "RPC calls dispatched, by RPC name and direction.",
	}, []string{"rpc", "direction"})
	admissionTotal = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "entnet_admissions_total",
		Help: "Peers admitted by the server engine.",
	})
	entityCreate = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "entnet_entity_lifecycle_total",
		Help: "Entity lifecycle events, by kind (created, accepted, rejected, removed).",
	}, []string{"kind"})

	enabled.Store(true)
	return reg
}

// IsEnabled reports whether InitRegistry has run. Recording functions below
// are no-ops when it hasn't, so instrumented call sites don't need their own
// enabled checks.
func IsEnabled() bool { return enabled.Load() }

// GetRegistry returns the active registry, or nil if InitRegistry hasn't run.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}

func FrameEncoded(command string) {
	if !IsEnabled() {
		return
	}
	framesEncoded.WithLabelValues(command).Inc()
}

func FrameDecoded(command string) {
	if !IsEnabled() {
		return
	}
	framesDecoded.WithLabelValues(command).Inc()
}

func DirtyPropertiesFlushed(source string, count int) {
	if !IsEnabled() {
		return
	}
	dirtyPerTick.WithLabelValues(source).Observe(float64(count))
}

func SetKnownDatasetSize(peerID int64, size int) {
	if !IsEnabled() {
		return
	}
	knownDataset.WithLabelValues(peerLabel(peerID)).Set(float64(size))
}

func SetOutboundQueueDepth(peerID int64, depth int) {
	if !IsEnabled() {
		return
	}
	outboundQueue.WithLabelValues(peerLabel(peerID)).Set(float64(depth))
}

func RPCDispatched(name, direction string) {
	if !IsEnabled() {
		return
	}
	rpcDispatched.WithLabelValues(name, direction).Inc()
}

func AdmissionRecorded() {
	if !IsEnabled() {
		return
	}
	admissionTotal.Inc()
}

func EntityLifecycle(kind string) {
	if !IsEnabled() {
		return
	}
	entityCreate.WithLabelValues(kind).Inc()
}

func peerLabel(id int64) string {
	return strconv.FormatInt(id, 10)
}
