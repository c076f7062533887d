/*
Copyright © 2020 Dell Inc. or its subsidiaries. All Rights Reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

   http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics contains prometheus helpers for duration measuring
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ExtendedDefBuckets are prometheus.DefBuckets extended with long running operations.
// mdadm resync and array growth could take minutes
var ExtendedDefBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800}

// Statistic is an interface for duration histograms
type Statistic interface {
	Collect() prometheus.Collector
	EvaluateDuration(labels prometheus.Labels) func()
	EvaluateDurationForMethod(method string, labels ...prometheus.Labels) func()
	EvaluateDurationForType(t string, labels ...prometheus.Labels) func()
}

// Metrics is an implementation of Statistic based on prometheus.HistogramVec
type Metrics struct {
	OperationsDuration *prometheus.HistogramVec
}

// NewMetrics creates Metrics with histogram options and label names
func NewMetrics(opts prometheus.HistogramOpts, labels ...string) *Metrics {
	if len(labels) == 0 {
		labels = []string{"method"}
	}
	return &Metrics{
		OperationsDuration: prometheus.NewHistogramVec(opts, labels),
	}
}

// Collect returns underlying collector for registration
func (m *Metrics) Collect() prometheus.Collector {
	return m.OperationsDuration
}

// EvaluateDuration starts duration measuring. Call of returned function observes duration with provided labels
func (m *Metrics) EvaluateDuration(labels prometheus.Labels) func() {
	start := time.Now()
	return func() {
		m.OperationsDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}

// EvaluateDurationForMethod is EvaluateDuration with "method" label set
func (m *Metrics) EvaluateDurationForMethod(method string, labels ...prometheus.Labels) func() {
	return m.EvaluateDuration(mergeLabels(prometheus.Labels{"method": method}, labels...))
}

// EvaluateDurationForType is EvaluateDuration with "type" label set
func (m *Metrics) EvaluateDurationForType(t string, labels ...prometheus.Labels) func() {
	return m.EvaluateDuration(mergeLabels(prometheus.Labels{"type": t}, labels...))
}

func mergeLabels(base prometheus.Labels, labels ...prometheus.Labels) prometheus.Labels {
	for _, l := range labels {
		for k, v := range l {
			base[k] = v
		}
	}
	return base
}
