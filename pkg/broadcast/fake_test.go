// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package broadcast

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/q191201771/rtmppub/pkg/base"
	"github.com/q191201771/rtmppub/pkg/rtmp"
)

// fakeScheduler 模拟时间，只有调用Advance时定时器才会触发
type fakeScheduler struct {
	mu      sync.Mutex
	now     time.Duration
	timers  []*fakeTimer
	maxLive int
}

type fakeTimer struct {
	s       *fakeScheduler
	at      time.Duration
	fn      func()
	fired   bool
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, at: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	if n := s.liveLocked(); n > s.maxLive {
		s.maxLive = n
	}
	return t
}

func (s *fakeScheduler) live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked()
}

func (s *fakeScheduler) liveLocked() int {
	n := 0
	for _, t := range s.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// Advance 按时间顺序触发到期的定时器，回调在调用方协程中执行
func (s *fakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		var due []*fakeTimer
		for _, t := range s.timers {
			if !t.fired && !t.stopped && t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			s.setNowLocked(target)
			s.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool { return due[i].at < due[j].at })
		t := due[0]
		t.fired = true
		s.setNowLocked(t.at)
		s.mu.Unlock()

		t.fn()
	}
}

// setNowLocked 多个协程同时Advance时时间不回退
func (s *fakeScheduler) setNowLocked(now time.Duration) {
	if now > s.now {
		s.now = now
	}
}

// fakeConnection 不进行网络IO，事件由测试代码注入
type fakeConnection struct {
	mu              sync.Mutex
	listener        rtmp.OnStatusEvent
	connectCount    int
	connectErr      error
	publishNames    []string
	unpublishCount  int
	disconnectCount int
	closeCount      int
	msgs            []base.RtmpMsg

	// dropped 为true时丢弃注入的事件，直到下一次Connect
	dropped bool
	// block 不为nil时Connect阻塞到block被关闭
	block chan struct{}
	// waitCtx 为true时Connect阻塞到ctx结束
	waitCtx bool
}

func (c *fakeConnection) Connect(ctx context.Context, rawUrl string) error {
	c.mu.Lock()
	c.connectCount++
	c.dropped = false
	block := c.block
	waitCtx := c.waitCtx
	err := c.connectErr
	c.mu.Unlock()

	if block != nil {
		<-block
	}
	if waitCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (c *fakeConnection) Publish(streamName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishNames = append(c.publishNames, streamName)
	return nil
}

func (c *fakeConnection) Unpublish() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unpublishCount++
	return nil
}

func (c *fakeConnection) WriteMsg(msg base.RtmpMsg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeConnection) SetStatusListener(listener rtmp.OnStatusEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = listener
}

func (c *fakeConnection) GetStat() base.StatSession {
	return base.StatSession{SessionId: "FAKECONN1", Protocol: base.ProtocolRtmp}
}

func (c *fakeConnection) UpdateStat(intervalSec uint32) {
}

func (c *fakeConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCount++
	c.dropped = true
	return nil
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	c.listener = nil
	return nil
}

// emit 模拟连接层产生的事件，关闭或断开之后的事件被丢弃
func (c *fakeConnection) emit(event rtmp.StatusEvent) {
	c.mu.Lock()
	listener := c.listener
	if c.dropped {
		listener = nil
	}
	c.mu.Unlock()
	if listener != nil {
		listener(event)
	}
}

func (c *fakeConnection) getConnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectCount
}

func (c *fakeConnection) getDisconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectCount
}

func (c *fakeConnection) snapshotMsgs() []base.RtmpMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := make([]base.RtmpMsg, len(c.msgs))
	copy(ret, c.msgs)
	return ret
}

type fakeSource struct {
	mu      sync.Mutex
	cb      rtmp.OnAvPacket
	stopped bool
}

func (f *fakeSource) Start(onAvPacket rtmp.OnAvPacket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = onAvPacket
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeSource) emit(pkt base.AvPacket) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb(pkt)
	}
}

// recordObserver 按顺序记录回调
type recordObserver struct {
	mu     sync.Mutex
	events []string
	errs   []error
	ch     chan string

	onError func(err error)
}

func newRecordObserver() *recordObserver {
	return &recordObserver{ch: make(chan string, 1024)}
}

func (o *recordObserver) OnStatus(status BroadcastStatus) {
	o.mu.Lock()
	o.events = append(o.events, status.ReadableString())
	o.mu.Unlock()
	o.ch <- status.ReadableString()
}

func (o *recordObserver) OnError(err error) {
	o.mu.Lock()
	o.events = append(o.events, "error")
	o.errs = append(o.errs, err)
	fn := o.onError
	o.mu.Unlock()
	o.ch <- "error"
	if fn != nil {
		fn(err)
	}
}

func (o *recordObserver) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ret := make([]string, len(o.events))
	copy(ret, o.events)
	return ret
}

func (o *recordObserver) lastErr() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.errs) == 0 {
		return nil
	}
	return o.errs[len(o.errs)-1]
}

var (
	eventConnectSuccess = rtmp.StatusEvent{Code: rtmp.StatusConnectSuccess, Raw: rtmp.CodeNetConnectionConnectSuccess}
	eventPublishStart   = rtmp.StatusEvent{Code: rtmp.StatusPublishStart, Raw: rtmp.CodeNetStreamPublishStart}
	eventUnpublish      = rtmp.StatusEvent{Code: rtmp.StatusUnpublishSuccess, Raw: rtmp.CodeNetStreamUnpublishSuccess}
	eventBadName        = rtmp.StatusEvent{Code: rtmp.StatusPublishBadName, Raw: rtmp.CodeNetStreamPublishBadName}
)

func eventConnectFailed() rtmp.StatusEvent {
	return rtmp.StatusEvent{Code: rtmp.StatusConnectFailed, Err: base.NewErrConnectFailed(context.DeadlineExceeded)}
}

func eventConnectClosed() rtmp.StatusEvent {
	return rtmp.StatusEvent{Code: rtmp.StatusConnectClosed, Err: base.NewErrConnectionClosed(nil)}
}

func testConfig() StreamConfig {
	c := DefaultStreamConfig()
	c.Url = "rtmp://127.0.0.1/live/show1"
	return c
}
