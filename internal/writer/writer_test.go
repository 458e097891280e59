// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package writer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chirpwatch/lorawan-analyzer/model"
)

type fakeStore struct {
	mu              sync.Mutex
	packetBatches   [][]*model.ParsedPacket
	csBatches       [][]*model.CsPacket
	gatewayCalls    int
	csDeviceCalls   int
	failNextPackets bool
}

func newFakeStore() *fakeStore { return &fakeStore{} }

func (s *fakeStore) InsertPackets(_ context.Context, rows []*model.ParsedPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNextPackets {
		s.failNextPackets = false
		return assertErr
	}
	batch := make([]*model.ParsedPacket, len(rows))
	copy(batch, rows)
	s.packetBatches = append(s.packetBatches, batch)
	return nil
}

func (s *fakeStore) InsertCsPackets(_ context.Context, rows []*model.CsPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]*model.CsPacket, len(rows))
	copy(batch, rows)
	s.csBatches = append(s.csBatches, batch)
	return nil
}

func (s *fakeStore) UpsertGateway(_ context.Context, _ string, _, _, _ *string, _, _ *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gatewayCalls++
	return nil
}

func (s *fakeStore) UpsertCsDevice(_ context.Context, _ string, _ *string, _, _ string, _ *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.csDeviceCalls++
	return nil
}

func (s *fakeStore) snapshot() (int, int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.packetBatches), len(s.csBatches), s.gatewayCalls, s.csDeviceCalls
}

var assertErr = &fakeErr{"insert failed"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

type fakeNotifier struct {
	mu            sync.Mutex
	gatewayCalls  int
	csDeviceCalls int
}

func (n *fakeNotifier) UpsertGateway(string, *string, *string, *string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gatewayCalls++
}

func (n *fakeNotifier) UpsertCsDevice(string, *string, string, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.csDeviceCalls++
}

type fakeMetrics struct {
	mu      sync.Mutex
	flushes map[string]int
	retries map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{flushes: map[string]int{}, retries: map[string]int{}}
}

func (m *fakeMetrics) ObserveFlush(stream string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes[stream]++
}

func (m *fakeMetrics) IncFlushRetry(stream string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[stream]++
}

func (m *fakeMetrics) counts() (flushes, retries map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	flushes = make(map[string]int, len(m.flushes))
	for k, v := range m.flushes {
		flushes[k] = v
	}
	retries = make(map[string]int, len(m.retries))
	for k, v := range m.retries {
		retries[k] = v
	}
	return flushes, retries
}

func samplePacket() *model.ParsedPacket {
	return &model.ParsedPacket{Timestamp: time.Now(), GatewayID: "gw-1", Operator: "The Things Network"}
}

func sampleCsPacket() *model.CsPacket {
	return &model.CsPacket{Timestamp: time.Now(), DevEUI: "0011223344556677", DeviceName: "sensor-1", ApplicationID: "farm-app"}
}

func TestFlushOnBatchSize(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	w := New(store, notifier, Config{BatchSize: 3, FlushInterval: time.Hour})
	w.Start()

	for i := 0; i < 3; i++ {
		w.Packets() <- samplePacket()
	}

	require.Eventually(t, func() bool {
		batches, _, _, _ := store.snapshot()
		return batches == 1
	}, time.Second, time.Millisecond)

	w.Close()
}

func TestFlushOnInterval(t *testing.T) {
	store := newFakeStore()
	w := New(store, nil, Config{BatchSize: 1000, FlushInterval: 20 * time.Millisecond})
	w.Start()

	w.Packets() <- samplePacket()

	require.Eventually(t, func() bool {
		batches, _, _, _ := store.snapshot()
		return batches == 1
	}, time.Second, time.Millisecond)

	w.Close()
}

func TestFailedFlushRequeuesAtHead(t *testing.T) {
	store := newFakeStore()
	store.failNextPackets = true
	w := New(store, nil, Config{BatchSize: 2, FlushInterval: time.Hour})
	w.Start()

	w.Packets() <- samplePacket()
	w.Packets() <- samplePacket()

	require.Eventually(t, func() bool {
		batches, _, _, _ := store.snapshot()
		return batches == 0
	}, 200*time.Millisecond, time.Millisecond)

	w.Packets() <- samplePacket()

	require.Eventually(t, func() bool {
		batches, _, _, _ := store.snapshot()
		return batches == 1
	}, time.Second, time.Millisecond)

	w.Close()
}

func TestMetricsObserveFlushAndRetry(t *testing.T) {
	store := newFakeStore()
	store.failNextPackets = true
	metrics := newFakeMetrics()
	w := New(store, nil, Config{BatchSize: 1, FlushInterval: time.Hour}).WithMetrics(metrics)
	w.Start()

	w.Packets() <- samplePacket()

	require.Eventually(t, func() bool {
		flushes, retries := metrics.counts()
		return flushes["packets"] == 1 && retries["packets"] == 1
	}, time.Second, time.Millisecond)

	w.Packets() <- samplePacket()

	require.Eventually(t, func() bool {
		flushes, _ := metrics.counts()
		return flushes["packets"] == 2
	}, time.Second, time.Millisecond)

	w.Close()
}

func TestCloseDrainsBothBuffers(t *testing.T) {
	store := newFakeStore()
	w := New(store, nil, Config{BatchSize: 1000, FlushInterval: time.Hour})
	w.Start()

	w.Packets() <- samplePacket()
	w.CsPackets() <- sampleCsPacket()

	w.Close()

	batches, csBatches, _, _ := store.snapshot()
	require.Equal(t, 1, batches)
	require.Equal(t, 1, csBatches)
}

func TestUpsertsCalledPerPacket(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	w := New(store, notifier, Config{BatchSize: 1000, FlushInterval: time.Hour})
	w.Start()

	w.Packets() <- samplePacket()
	w.CsPackets() <- sampleCsPacket()

	require.Eventually(t, func() bool {
		_, _, gwCalls, csCalls := store.snapshot()
		return gwCalls == 1 && csCalls == 1
	}, time.Second, time.Millisecond)

	w.Close()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Equal(t, 1, notifier.gatewayCalls)
	require.Equal(t, 1, notifier.csDeviceCalls)
}

func TestDefaultsAppliedWhenZero(t *testing.T) {
	cfg := Config{}.withDefaults()
	require.Equal(t, DefaultBatchSize, cfg.BatchSize)
	require.Equal(t, DefaultFlushInterval, cfg.FlushInterval)
}
