package control

import (
	"io"
	"sync"

	"github.com/VictoriaMetrics/metrics"
)

type controlMetrics struct {
	set *metrics.Set
}

var (
	metricsOnce sync.Once
	metricsObj  controlMetrics
)

func m() *controlMetrics {
	metricsOnce.Do(func() {
		metricsObj.set = metrics.NewSet()
	})
	return &metricsObj
}

func metricsControlOp(op string) {
	m().set.GetOrCreateCounter(`lipalloc_control_requests_total{op="` + op + `"}`).Inc()
}

func writePrometheus(w io.Writer) {
	m().set.WritePrometheus(w)
}
