package testutil

import (
	"fmt"
	"os"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const metricPrefix = "layercake_"

// ReadTextfile parses a metrics textfile and returns the layercake metric
// families keyed by name without the "layercake_" prefix.
func ReadTextfile(path string) (map[string][]*dto.Metric, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var parser expfmt.TextParser

	mfs, err := parser.TextToMetricFamilies(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	metrics := make(map[string][]*dto.Metric)
	for name, mf := range mfs {
		if strings.HasPrefix(name, metricPrefix) {
			metrics[strings.TrimPrefix(name, metricPrefix)] = mf.GetMetric()
		}
	}

	return metrics, nil
}

// FindMetric returns the sample of metric carrying label=value, or nil.
func FindMetric(metrics map[string][]*dto.Metric, metric, label, value string) (*dto.Metric, error) {
	vectors, ok := metrics[metric]
	if !ok {
		return nil, fmt.Errorf("metric '%s' not found", metric)
	}

	return searchableMetrics(vectors).findMetric(label, value), nil
}

type searchableMetrics []*dto.Metric

func (ms searchableMetrics) findMetric(label, value string) *dto.Metric {
	for _, m := range ms {
		if searchableLabels(m.GetLabel()).contains(label, value) {
			return m
		}
	}

	return nil
}

type searchableLabels []*dto.LabelPair

func (ls searchableLabels) contains(name, val string) bool {
	for _, l := range ls {
		if l.GetName() == name && l.GetValue() == val {
			return true
		}
	}

	return false
}
