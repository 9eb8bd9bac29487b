package rebalance

import (
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const probeTimeout = 2 * time.Second

const (
	metricMemTotal     = "node_memory_MemTotal_bytes"
	metricMemAvailable = "node_memory_MemAvailable_bytes"
)

// freeMemoryGB scrapes a node_exporter-compatible Prometheus text
// endpoint and returns MemAvailable in GiB. Negative or unparsable
// values clamp to 0.
func freeMemoryGB(url string) (float64, error) {
	client := &http.Client{Timeout: probeTimeout}
	resp, err := client.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return 0, nil
	}

	available, ok := gaugeValue(families, metricMemAvailable)
	if !ok {
		return 0, nil
	}
	gb := available / (1024 * 1024 * 1024)
	if gb < 0 {
		return 0, nil
	}
	return gb, nil
}

func gaugeValue(families map[string]*dto.MetricFamily, name string) (float64, bool) {
	fam, ok := families[name]
	if !ok || len(fam.Metric) == 0 {
		return 0, false
	}
	m := fam.Metric[0]
	if m.Gauge != nil && m.Gauge.Value != nil {
		return *m.Gauge.Value, true
	}
	if m.Untyped != nil && m.Untyped.Value != nil {
		return *m.Untyped.Value, true
	}
	return 0, false
}
