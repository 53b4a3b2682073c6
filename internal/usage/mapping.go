// internal/usage/mapping.go
package usage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Internal metric names emitted by the agent layer. Only these four are
// billable; anything else (errors, rate_limited_requests, latency buckets)
// must never reach the billing control API.
const (
	MetricRequests     = "requests"
	MetricInputTokens  = "input_tokens"
	MetricOutputTokens = "output_tokens"
	MetricToolCalls    = "tool_calls"
)

// MetricMap translates internal metric names to the names registered with
// the billing control API. Acts as an allowlist: unmapped metrics are
// silently dropped.
type MetricMap struct {
	names map[string]string
}

func defaultMetricNames() map[string]string {
	return map[string]string{
		MetricRequests:     "requests",
		MetricInputTokens:  "input_tokens",
		MetricOutputTokens: "output_tokens",
		MetricToolCalls:    "tool_calls",
	}
}

func NewMetricMap() *MetricMap {
	return &MetricMap{names: defaultMetricNames()}
}

// LoadMetricMap reads a YAML override of the form
//
//	metrics:
//	  input_tokens: plan_input_tokens
//
// Entries replace the defaults; internal names absent from the defaults are
// rejected so a typo cannot open a new billable channel.
func LoadMetricMap(path string) (*MetricMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Metrics map[string]string `yaml:"metrics"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("metric map %s: %w", path, err)
	}
	m := NewMetricMap()
	for internal, billing := range doc.Metrics {
		if _, ok := m.names[internal]; !ok {
			return nil, fmt.Errorf("metric map %s: unknown metric %q", path, internal)
		}
		if billing == "" {
			return nil, fmt.Errorf("metric map %s: empty billing name for %q", path, internal)
		}
		m.names[internal] = billing
	}
	return m, nil
}

// Map filters raw metered values down to the billable set, renamed for the
// billing API. Zero values are dropped; an empty result means there is
// nothing to report.
func (m *MetricMap) Map(raw map[string]int64) map[string]int64 {
	out := map[string]int64{}
	for internal, v := range raw {
		billing, ok := m.names[internal]
		if !ok || v <= 0 {
			continue
		}
		out[billing] += v
	}
	return out
}
