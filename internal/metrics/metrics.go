// Package metrics holds Prometheus instruments that are used across the
// hub tooling.  All collectors are registered with the global registry.
// The hub is a short-lived CLI, so instead of serving /metrics the build
// command writes them in node-exporter textfile format.
package metrics

import (
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SettingsResolveTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tphub_settings_resolve_total",
			Help: "Cumulative number of settings objects successfully resolved.",
		})

	SettingsResolveErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tphub_settings_resolve_errors_total",
			Help: "Cumulative number of settings resolution failures.",
		})

	ConfigSaveTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tphub_config_save_total",
			Help: "Cumulative number of successful config.yml writes.",
		})

	ConfigSaveErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tphub_config_save_errors_total",
			Help: "Cumulative number of failed config.yml writes.",
		})

	StackBuildTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tphub_stack_build_total",
			Help: "Cumulative number of stack builds, by stack and result.",
		}, []string{"stack", "result"})
)

func init() {
	prometheus.MustRegister(
		SettingsResolveTotal,
		SettingsResolveErrorsTotal,
		ConfigSaveTotal,
		ConfigSaveErrorsTotal,
		StackBuildTotal,
	)
}

// WriteTextfile dumps the default registry to path for the node-exporter
// textfile collector.
func WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
