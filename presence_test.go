package sdspi

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/sdspi/platform/virtual"
)

type recordingHandler struct {
	mu       sync.Mutex
	inserted int
	removed  int
	ready    int
	errs     []error
}

func (h *recordingHandler) Inserted() { h.mu.Lock(); h.inserted++; h.mu.Unlock() }
func (h *recordingHandler) Removed()  { h.mu.Lock(); h.removed++; h.mu.Unlock() }
func (h *recordingHandler) Ready()    { h.mu.Lock(); h.ready++; h.mu.Unlock() }
func (h *recordingHandler) Error(err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
}

func (h *recordingHandler) snapshot() (int, int, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inserted, h.removed, h.ready, len(h.errs)
}

func TestMonitorInsertTriggersInitAndReady(t *testing.T) {
	vc := virtual.NewCard(16, true, 1)
	card := bindVirtual(t, vc)
	handler := &recordingHandler{}
	monitor := NewMonitor(vc, card, handler)

	vc.Insert()
	monitor.Poll()

	require.Eventually(t, func() bool {
		_, _, ready, _ := handler.snapshot()
		return ready == 1
	}, time.Second, time.Millisecond)

	inserted, _, _, errs := handler.snapshot()
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 0, errs)
	assert.True(t, card.IsReady())
}

func TestMonitorRemoveClearsReady(t *testing.T) {
	vc := virtual.NewCard(16, true, 1)
	card := bindVirtual(t, vc)
	handler := &recordingHandler{}
	monitor := NewMonitor(vc, card, handler)

	vc.Insert()
	monitor.Poll()
	require.Eventually(t, func() bool {
		return card.IsReady()
	}, time.Second, time.Millisecond)

	vc.Remove()
	monitor.Poll()

	assert.False(t, card.IsReady())
	assert.Equal(t, TypeUnknown, card.Type())
	_, removed, _, _ := handler.snapshot()
	assert.Equal(t, 1, removed)
}

func TestMonitorIgnoresSpuriousSameStateEdge(t *testing.T) {
	vc := virtual.NewCard(16, true, 1)
	card := bindVirtual(t, vc)
	handler := &recordingHandler{}
	monitor := NewMonitor(vc, card, handler)

	monitor.Poll() // already High==last, no-op
	inserted, removed, _, _ := handler.snapshot()
	assert.Equal(t, 0, inserted)
	assert.Equal(t, 0, removed)
}
