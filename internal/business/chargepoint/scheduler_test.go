package chargepoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualScheduler_OrderAndCancel(t *testing.T) {
	s := NewManualScheduler()
	var fired []TimerKind
	record := func(ev TimerEvent) { fired = append(fired, ev.Kind) }

	s.After(2*time.Second, TimerEvent{Kind: TimerStopAvailable})
	s.After(time.Second, TimerEvent{Kind: TimerStopFinishing})
	cancel := s.After(time.Second, TimerEvent{Kind: TimerRemoteStartDue})
	cancel()
	cancel()

	s.Advance(3*time.Second, record)
	assert.Equal(t, []TimerKind{TimerStopFinishing, TimerStopAvailable}, fired)
	assert.Equal(t, 0, s.Pending())
}

func TestManualScheduler_Every(t *testing.T) {
	s := NewManualScheduler()
	count := 0
	cancel := s.Every(10*time.Second, TimerEvent{Kind: TimerHeartbeatDue})

	s.Advance(35*time.Second, func(TimerEvent) { count++ })
	assert.Equal(t, 3, count)

	cancel()
	s.Advance(time.Minute, func(TimerEvent) { count++ })
	assert.Equal(t, 3, count)
}

func TestManualScheduler_TimersAddedWhileFiring(t *testing.T) {
	s := NewManualScheduler()
	var fired []TimerKind
	s.After(time.Second, TimerEvent{Kind: TimerStopFinishing})

	s.Advance(5*time.Second, func(ev TimerEvent) {
		fired = append(fired, ev.Kind)
		if ev.Kind == TimerStopFinishing {
			s.After(time.Second, TimerEvent{Kind: TimerStopAvailable})
		}
	})
	assert.Equal(t, []TimerKind{TimerStopFinishing, TimerStopAvailable}, fired)
}

func TestTimerScheduler(t *testing.T) {
	s := NewTimerScheduler(4)

	s.After(10*time.Millisecond, TimerEvent{Kind: TimerStopFinishing, ConnectorID: 1})
	select {
	case ev := <-s.C():
		assert.Equal(t, TimerStopFinishing, ev.Kind)
		assert.Equal(t, 1, ev.ConnectorID)
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	cancel := s.After(20*time.Millisecond, TimerEvent{Kind: TimerStopAvailable})
	cancel()
	select {
	case ev := <-s.C():
		t.Fatalf("cancelled timer fired: %v", ev)
	case <-time.After(60 * time.Millisecond):
	}

	stop := s.Every(5*time.Millisecond, TimerEvent{Kind: TimerHeartbeatDue})
	for i := 0; i < 2; i++ {
		select {
		case ev := <-s.C():
			require.Equal(t, TimerHeartbeatDue, ev.Kind)
		case <-time.After(time.Second):
			t.Fatal("ticker did not fire")
		}
	}
	stop()
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusInTransaction.IsValid())
	assert.False(t, Status("Charging").IsValid())
	assert.Equal(t, "Error", StatusError.String())
	assert.Len(t, statusLabels(), 6)
}
