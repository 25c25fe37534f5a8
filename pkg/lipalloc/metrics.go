package lipalloc

import (
	"io"
	"strconv"
	"sync"

	"github.com/VictoriaMetrics/metrics"
)

// allocMetrics holds the bind/unbind VictoriaMetrics counters, lazily
// initialized the way pkg/api/api0/metrics.go's apiMetrics is.
type allocMetrics struct {
	set *metrics.Set

	bind_requests_total   *metrics.Counter
	unbind_requests_total *metrics.Counter
}

var (
	metricsOnce sync.Once
	metricsObj  allocMetrics
)

func m() *allocMetrics {
	metricsOnce.Do(func() {
		metricsObj.set = metrics.NewSet()
		metricsObj.bind_requests_total = metricsObj.set.NewCounter(`lipalloc_bind_requests_total{result="ok"}`)
		metricsObj.unbind_requests_total = metricsObj.set.NewCounter(`lipalloc_unbind_requests_total{result="ok"}`)
	})
	return &metricsObj
}

// WritePrometheus writes the allocator's own metrics in Prometheus
// exposition format. pkg/control mounts this, plus its own set, under
// /metrics.
func WritePrometheus(w io.Writer) {
	m().set.WritePrometheus(w)
}

func serviceLabels(key ServiceKey) string {
	return `proto="` + protoLabel(key.Proto) + `",vaddr="` + key.VAddr.String() + `",vport="` + portLabel(key.VPort) + `"`
}

func protoLabel(p Proto) string {
	switch p {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	default:
		return "other"
	}
}

func portLabel(port uint16) string {
	return strconv.Itoa(int(port))
}

func metricsBindOk(key ServiceKey) {
	m().bind_requests_total.Inc()
	m().set.GetOrCreateCounter(`lipalloc_bind_requests_by_service_total{` + serviceLabels(key) + `,result="ok"}`).Inc()
}

func metricsBindFail(key ServiceKey, status Status) {
	m().set.GetOrCreateCounter(`lipalloc_bind_requests_by_service_total{` + serviceLabels(key) + `,result="` + string(status) + `"}`).Inc()
}

func metricsUnbind(key ServiceKey) {
	m().unbind_requests_total.Inc()
	m().set.GetOrCreateCounter(`lipalloc_unbind_requests_by_service_total{` + serviceLabels(key) + `}`).Inc()
}
