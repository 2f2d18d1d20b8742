package notify

import (
	"container/heap"
	"context"
	"errors"
	"sort"
	"time"

	appLog "periodbell/internal/log"
)

// maxSleepCap bounds how long the delivery loop sleeps, so wall-clock
// steps and system suspend are noticed within a minute.
const maxSleepCap = 60 * time.Second

// ErrBackendClosed is returned once the backend's context is done.
var ErrBackendClosed = errors.New("notify: backend closed")

type opKind int

const (
	opAdd opKind = iota
	opRemove
	opList
)

// op is one request to the delivery goroutine. All requests share one
// channel so a cancel followed by a reschedule is applied in that order.
type op struct {
	kind  opKind
	alert Alert
	ids   []int
	reply chan []Alert
}

// LocalBackend delivers alerts in-process. A single goroutine owns a
// min-heap of queued alerts and hands each one to the Sink when its time
// comes.
type LocalBackend struct {
	sink Sink
	ctx  context.Context
	ops  chan op
	done chan struct{}
}

// NewLocalBackend starts the delivery goroutine. It exits when ctx is
// cancelled; queued alerts are dropped. Done reports when it has exited.
func NewLocalBackend(ctx context.Context, sink Sink) *LocalBackend {
	b := &LocalBackend{
		sink: sink,
		ctx:  ctx,
		ops:  make(chan op, 64),
		done: make(chan struct{}),
	}
	go b.run()
	return b
}

// Done is closed once the delivery goroutine has returned. No Sink.Deliver
// call starts after that.
func (b *LocalBackend) Done() <-chan struct{} {
	return b.done
}

// RequestPermission always succeeds: delivering in-process needs no grant.
func (b *LocalBackend) RequestPermission(ctx context.Context) (bool, error) {
	if err := b.alive(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ScheduleAt queues a. An alert with the same id replaces the queued one.
// Alerts whose time has passed fire on the next loop iteration.
func (b *LocalBackend) ScheduleAt(ctx context.Context, a Alert) error {
	return b.send(ctx, op{kind: opAdd, alert: a})
}

// Cancel drops queued alerts with the given ids.
func (b *LocalBackend) Cancel(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	return b.send(ctx, op{kind: opRemove, ids: append([]int(nil), ids...)})
}

// CancelOne drops a queued alert and, when the sink shows ongoing
// notifications, clears the ongoing one with that id.
func (b *LocalBackend) CancelOne(ctx context.Context, id int) error {
	if err := b.Cancel(ctx, []int{id}); err != nil {
		return err
	}
	if sink, ok := b.sink.(OngoingSink); ok {
		sink.ClearOngoing(id)
	}
	return nil
}

// OngoingSupported reports whether the sink can show ongoing notifications.
func (b *LocalBackend) OngoingSupported() bool {
	_, ok := b.sink.(OngoingSink)
	return ok
}

// ScheduleOngoing shows or replaces the ongoing notification id.
func (b *LocalBackend) ScheduleOngoing(ctx context.Context, id int, title, body string) error {
	sink, ok := b.sink.(OngoingSink)
	if !ok {
		return errors.New("notify: sink has no ongoing support")
	}
	if err := b.alive(ctx); err != nil {
		return err
	}
	sink.ShowOngoing(id, title, body)
	return nil
}

// pending lists queued alerts in fire order.
func (b *LocalBackend) pending(ctx context.Context) ([]Alert, error) {
	reply := make(chan []Alert, 1)
	if err := b.send(ctx, op{kind: opList, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case out := <-reply:
		return out, nil
	case <-b.ctx.Done():
		return nil, ErrBackendClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *LocalBackend) send(ctx context.Context, o op) error {
	if err := b.alive(ctx); err != nil {
		return err
	}
	select {
	case b.ops <- o:
		return nil
	case <-b.ctx.Done():
		return ErrBackendClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LocalBackend) alive(ctx context.Context) error {
	if b.ctx.Err() != nil {
		return ErrBackendClosed
	}
	return ctx.Err()
}

// run is the delivery goroutine. It sleeps until the earliest alert is
// due, capped at maxSleepCap.
func (b *LocalBackend) run() {
	defer close(b.done)

	h := &alertHeap{}
	heap.Init(h)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		if h.Len() == 0 {
			return nil
		}
		dur := time.Until((*h)[0].At)
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()

	for {
		select {
		case <-b.ctx.Done():
			if h.Len() > 0 {
				appLog.Debug("notify: local backend stopped", "dropped", h.Len())
			}
			return

		case o := <-b.ops:
			switch o.kind {
			case opAdd:
				heapRemoveByID(h, o.alert.ID)
				heapPush(h, o.alert)
			case opRemove:
				for _, id := range o.ids {
					heapRemoveByID(h, id)
				}
			case opList:
				out := append([]Alert(nil), (*h)...)
				sort.Slice(out, func(i, j int) bool { return alertHeap(out).Less(i, j) })
				o.reply <- out
				continue
			}
			timerCh = resetTimer()

		case <-timerCh:
			now := time.Now()
			for h.Len() > 0 && !(*h)[0].At.After(now) {
				a := heapPop(h)
				appLog.Debug("notify: delivering alert", "id", a.ID, "title", a.Title)
				b.sink.Deliver(a)
			}
			timerCh = resetTimer()
		}
	}
}

var _ OngoingBackend = (*LocalBackend)(nil)
