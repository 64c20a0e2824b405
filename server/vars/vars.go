// Package vars publishes the identity of a running alertd as metrics.
package vars

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Product is the name of the product.
const Product = "alertd"

// Info identifies a running server.
type Info struct {
	ServerID string
	Host     string
	Version  string
	Commit   string
}

// Collectors returns an info gauge, always 1, labelled with the server identity,
// and a gauge of the seconds elapsed since start.
func Collectors(info Info, start time.Time) []prometheus.Collector {
	build := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Product,
		Name:      "info",
		Help:      "Identity of this server.",
		ConstLabels: prometheus.Labels{
			"server_id": info.ServerID,
			"host":      info.Host,
			"version":   info.Version,
			"commit":    info.Commit,
			"platform":  runtime.GOOS + "/" + runtime.GOARCH,
		},
	})
	build.Set(1)
	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Product,
		Name:      "uptime_seconds",
		Help:      "Seconds since the server started.",
	}, func() float64 {
		return time.Since(start).Seconds()
	})
	return []prometheus.Collector{build, uptime}
}
