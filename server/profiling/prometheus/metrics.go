/*
 * Copyright 2026 The DataProvider Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package prometheus provides a Prometheus metrics exporter.
package prometheus

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MelbourneDeveloper/DataProvider-sub005/api/types"
	"github.com/MelbourneDeveloper/DataProvider-sub005/internal/version"
)

const (
	namespace      = "dpsync"
	methodLabel    = "method"
	codeLabel      = "code"
	hostnameLabel  = "hostname"
	taskTypeLabel  = "task_type"
	eventTypeLabel = "event_type"
)

// Metrics manages the metric information that the sync hub measures.
type Metrics struct {
	registry *prometheus.Registry

	serverVersion        *prometheus.GaugeVec
	serverHandledCounter *prometheus.CounterVec

	pushResponseSeconds      prometheus.Histogram
	pushReceivedEntriesTotal *prometheus.CounterVec
	pushAppliedEntriesTotal  *prometheus.CounterVec
	pushRejectedEntriesTotal *prometheus.CounterVec
	pullResponseSeconds      prometheus.Histogram
	pullSentEntriesTotal     *prometheus.CounterVec

	snapshotDurationSeconds prometheus.Histogram
	snapshotRowsTotal       *prometheus.CounterVec

	backgroundGoroutinesTotal *prometheus.GaugeVec

	watchConnectionsTotal *prometheus.GaugeVec
	watchEventsTotal      *prometheus.CounterVec

	brokerProduceFailuresTotal prometheus.Counter

	purgedChangesTotal      prometheus.Counter
	deactivatedClientsTotal prometheus.Counter
}

// NewMetrics creates a new instance of Metrics.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	metrics := &Metrics{
		registry: reg,
		serverVersion: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "version",
			Help:      "Which version is running. 1 for 'server_version' label with current version.",
		}, []string{"server_version"}),
		serverHandledCounter: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "server_handled_total",
			Help:      "Total number of RPCs completed on the server, regardless of success or failure.",
		}, []string{methodLabel, codeLabel}),
		pushResponseSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "push_response_seconds",
			Help:      "The response time of Push.",
		}),
		pushReceivedEntriesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "push_received_entries_total",
			Help:      "The total count of log entries received in Push requests.",
		}, []string{hostnameLabel}),
		pushAppliedEntriesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "push_applied_entries_total",
			Help:      "The total count of log entries appended to the hub log by Push.",
		}, []string{hostnameLabel}),
		pushRejectedEntriesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "push_rejected_entries_total",
			Help:      "The total count of log entries rejected by Push validation.",
		}, []string{hostnameLabel}),
		pullResponseSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pull_response_seconds",
			Help:      "The response time of Pull.",
		}),
		pullSentEntriesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pull_sent_entries_total",
			Help:      "The total count of log entries returned in Pull batches.",
		}, []string{hostnameLabel}),
		snapshotDurationSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "snapshot_duration_seconds",
			Help:      "The build time of full-dataset snapshots.",
		}),
		snapshotRowsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "snapshot_rows_total",
			Help:      "The total count of rows returned by snapshots.",
		}, []string{hostnameLabel}),
		backgroundGoroutinesTotal: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "background",
			Name:      "goroutines_total",
			Help:      "The total number of goroutines attached by a particular background task.",
		}, []string{taskTypeLabel}),
		watchConnectionsTotal: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "watch_connections_total",
			Help:      "The total number of watch stream connections.",
		}, []string{hostnameLabel}),
		watchEventsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "watch_events_total",
			Help:      "The total number of events delivered on watch streams.",
		}, []string{hostnameLabel, eventTypeLabel}),
		brokerProduceFailuresTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "produce_failures_total",
			Help:      "The total number of messages the change-feed broker failed to produce.",
		}),
		purgedChangesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "housekeeping",
			Name:      "purged_changes_total",
			Help:      "The total number of log entries removed by retention purges.",
		}),
		deactivatedClientsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "housekeeping",
			Name:      "deactivated_clients_total",
			Help:      "The total number of stale replicas deactivated by housekeeping.",
		}),
	}

	metrics.serverVersion.With(prometheus.Labels{
		"server_version": version.Version,
	}).Set(1)

	return metrics, nil
}

// AddServerHandledCounter adds the number of RPCs completed on the server.
func (m *Metrics) AddServerHandledCounter(method, code string) {
	m.serverHandledCounter.With(prometheus.Labels{
		methodLabel: method,
		codeLabel:   code,
	}).Inc()
}

// ObservePushResponseSeconds adds an observation for the response time of
// Push.
func (m *Metrics) ObservePushResponseSeconds(seconds float64) {
	m.pushResponseSeconds.Observe(seconds)
}

// AddPushReceivedEntries adds the number of entries included in a Push
// request.
func (m *Metrics) AddPushReceivedEntries(hostname string, count int) {
	m.pushReceivedEntriesTotal.With(prometheus.Labels{
		hostnameLabel: hostname,
	}).Add(float64(count))
}

// AddPushAppliedEntries adds the number of entries a Push appended to the
// hub log.
func (m *Metrics) AddPushAppliedEntries(hostname string, count int) {
	m.pushAppliedEntriesTotal.With(prometheus.Labels{
		hostnameLabel: hostname,
	}).Add(float64(count))
}

// AddPushRejectedEntries adds the number of entries a Push rejected during
// validation.
func (m *Metrics) AddPushRejectedEntries(hostname string, count int) {
	m.pushRejectedEntriesTotal.With(prometheus.Labels{
		hostnameLabel: hostname,
	}).Add(float64(count))
}

// ObservePullResponseSeconds adds an observation for the response time of
// Pull.
func (m *Metrics) ObservePullResponseSeconds(seconds float64) {
	m.pullResponseSeconds.Observe(seconds)
}

// AddPullSentEntries adds the number of entries returned in a Pull batch.
func (m *Metrics) AddPullSentEntries(hostname string, count int) {
	m.pullSentEntriesTotal.With(prometheus.Labels{
		hostnameLabel: hostname,
	}).Add(float64(count))
}

// ObserveSnapshotDurationSeconds adds an observation for the build time of a
// snapshot.
func (m *Metrics) ObserveSnapshotDurationSeconds(seconds float64) {
	m.snapshotDurationSeconds.Observe(seconds)
}

// AddSnapshotRows adds the number of rows returned by a snapshot.
func (m *Metrics) AddSnapshotRows(hostname string, count int) {
	m.snapshotRowsTotal.With(prometheus.Labels{
		hostnameLabel: hostname,
	}).Add(float64(count))
}

// AddBackgroundGoroutines adds the number of goroutines attached by a
// particular background task.
func (m *Metrics) AddBackgroundGoroutines(taskType string) {
	m.backgroundGoroutinesTotal.With(prometheus.Labels{
		taskTypeLabel: taskType,
	}).Inc()
}

// RemoveBackgroundGoroutines removes the number of goroutines attached by a
// particular background task.
func (m *Metrics) RemoveBackgroundGoroutines(taskType string) {
	m.backgroundGoroutinesTotal.With(prometheus.Labels{
		taskTypeLabel: taskType,
	}).Dec()
}

// AddWatchConnections adds the number of watch stream connections.
func (m *Metrics) AddWatchConnections(hostname string) {
	m.watchConnectionsTotal.With(prometheus.Labels{
		hostnameLabel: hostname,
	}).Inc()
}

// RemoveWatchConnections removes the number of watch stream connections.
func (m *Metrics) RemoveWatchConnections(hostname string) {
	m.watchConnectionsTotal.With(prometheus.Labels{
		hostnameLabel: hostname,
	}).Dec()
}

// AddWatchEvents adds the number of events delivered on watch streams.
func (m *Metrics) AddWatchEvents(hostname string, eventType types.EventType) {
	m.watchEventsTotal.With(prometheus.Labels{
		hostnameLabel:  hostname,
		eventTypeLabel: string(eventType),
	}).Inc()
}

// AddBrokerProduceFailures adds the number of messages the change-feed
// broker failed to produce.
func (m *Metrics) AddBrokerProduceFailures() {
	m.brokerProduceFailuresTotal.Inc()
}

// AddPurgedChanges adds the number of log entries removed by a retention
// purge.
func (m *Metrics) AddPurgedChanges(count int64) {
	m.purgedChangesTotal.Add(float64(count))
}

// AddDeactivatedClients adds the number of stale replicas deactivated by
// housekeeping.
func (m *Metrics) AddDeactivatedClients(count int) {
	m.deactivatedClientsTotal.Add(float64(count))
}

// Registry returns the registry of this metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
