package chargepoint

import (
	"sort"
	"sync"
	"time"
)

// TimerKind 定时事件类型
type TimerKind string

const (
	TimerHeartbeatDue   TimerKind = "HeartbeatDue"
	TimerStopFinishing  TimerKind = "StopFinishing"
	TimerStopAvailable  TimerKind = "StopAvailable"
	TimerRemoteStartDue TimerKind = "RemoteStartDue"
)

// TimerEvent 定时事件，与网络事件在同一个调度循环中处理
type TimerEvent struct {
	Kind        TimerKind
	ConnectorID int
	IdTag       string
	Generation  uint64 // 心跳代数，过期的心跳事件被忽略
}

// CancelFunc 取消定时器
type CancelFunc func()

// Scheduler 定时事件调度器
type Scheduler interface {
	// After 在 d 之后投递一次事件
	After(d time.Duration, ev TimerEvent) CancelFunc
	// Every 每隔 d 投递一次事件
	Every(d time.Duration, ev TimerEvent) CancelFunc
	// C 事件通道，手动调度器返回 nil
	C() <-chan TimerEvent
}

// TimerScheduler 基于 time 包的调度器
type TimerScheduler struct {
	ch chan TimerEvent
}

// NewTimerScheduler 创建调度器
func NewTimerScheduler(buffer int) *TimerScheduler {
	if buffer < 1 {
		buffer = 16
	}
	return &TimerScheduler{ch: make(chan TimerEvent, buffer)}
}

func (s *TimerScheduler) C() <-chan TimerEvent {
	return s.ch
}

func (s *TimerScheduler) After(d time.Duration, ev TimerEvent) CancelFunc {
	stop := make(chan struct{})
	var once sync.Once
	timer := time.AfterFunc(d, func() {
		select {
		case s.ch <- ev:
		case <-stop:
		}
	})
	return func() {
		once.Do(func() {
			timer.Stop()
			close(stop)
		})
	}
}

func (s *TimerScheduler) Every(d time.Duration, ev TimerEvent) CancelFunc {
	stop := make(chan struct{})
	var once sync.Once
	ticker := time.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				select {
				case s.ch <- ev:
				case <-stop:
					return
				}
			}
		}
	}()
	return func() {
		once.Do(func() { close(stop) })
	}
}

// ManualScheduler 手动推进时间的调度器，供测试使用
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers map[int]*manualTimer
}

type manualTimer struct {
	id     int
	due    time.Duration
	period time.Duration
	event  TimerEvent
}

// NewManualScheduler 创建手动调度器
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{timers: make(map[int]*manualTimer)}
}

func (s *ManualScheduler) C() <-chan TimerEvent {
	return nil
}

func (s *ManualScheduler) After(d time.Duration, ev TimerEvent) CancelFunc {
	return s.add(d, 0, ev)
}

func (s *ManualScheduler) Every(d time.Duration, ev TimerEvent) CancelFunc {
	return s.add(d, d, ev)
}

func (s *ManualScheduler) add(d, period time.Duration, ev TimerEvent) CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := s.seq
	s.timers[id] = &manualTimer{id: id, due: s.now + d, period: period, event: ev}
	return func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
	}
}

// Pending 当前活动的定时器数量
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Advance 推进时间 d，按到期顺序把事件交给 fire，fire 中新建的定时器同样参与本次推进
func (s *ManualScheduler) Advance(d time.Duration, fire func(TimerEvent)) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.nextDue(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = next.due
		ev := next.event
		if next.period > 0 {
			next.due += next.period
		} else {
			delete(s.timers, next.id)
		}
		s.mu.Unlock()

		fire(ev)
	}
}

func (s *ManualScheduler) nextDue(target time.Duration) *manualTimer {
	var due []*manualTimer
	for _, t := range s.timers {
		if t.due <= target {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due == due[j].due {
			return due[i].id < due[j].id
		}
		return due[i].due < due[j].due
	})
	return due[0]
}
