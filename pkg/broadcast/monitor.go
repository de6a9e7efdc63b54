// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package broadcast

import (
	"fmt"
	"sync"
	"time"

	"github.com/q191201771/rtmppub/pkg/base"
	"github.com/q191201771/rtmppub/pkg/rtmp"
)

type StatusMonitorOption struct {
	ReconnectGraceMs     int // 发起连接后，超过该时间没有连接成功，则开始周期性重连
	ReconnectIntervalMs  int // 重连的周期
	MaxReconnectAttempts int // 最大重连次数，只统计真正发起的重连。超过后停止重连，保持Failed状态
}

var defaultStatusMonitorOption = StatusMonitorOption{
	ReconnectGraceMs:     20000,
	ReconnectIntervalMs:  5000,
	MaxReconnectAttempts: 12,
}

type ModStatusMonitorOption func(option *StatusMonitorOption)

// OnTransition 状态迁移后回调，不持有monitor的锁
type OnTransition func(from, to ConnectionState)

// OnReconnect 重连定时器触发时回调，由上层关闭之前的连接并重新连接
//
// @return 上一次重连还没有结束，本次没有发起时返回false，不计入重连次数
//
type OnReconnect func() bool

// OnExhausted 重连次数用完时回调，由上层放弃最后一次还没有结果的连接
type OnExhausted func()

type timerKind int

const (
	timerKindNone timerKind = iota
	timerKindGrace
	timerKindRetry
)

func (k timerKind) ReadableString() string {
	switch k {
	case timerKindGrace:
		return "grace"
	case timerKindRetry:
		return "retry"
	}
	return "none"
}

// StatusMonitor 根据连接上的状态事件驱动状态机，并管理重连定时器
//
// 任意时刻最多只有一个定时器（宽限定时器或者重连定时器）。
// 状态以及定时器由mu保护，回调上层时不持有mu。
//
type StatusMonitor struct {
	uniqueKey string
	option    StatusMonitorOption
	scheduler Scheduler
	sink      *CallbackSink

	onTransition OnTransition
	onReconnect  OnReconnect
	onExhausted  OnExhausted

	mu          sync.Mutex
	state       ConnectionState
	timer       Timer
	timerKind   timerKind
	timerGen    uint64
	retryCount  int
	errNotified bool // 本轮重连中是否已经通知过错误
	exhausted   bool
	closed      bool
}

func NewStatusMonitor(uniqueKey string, scheduler Scheduler, sink *CallbackSink, modOptions ...ModStatusMonitorOption) *StatusMonitor {
	option := defaultStatusMonitorOption
	for _, fn := range modOptions {
		fn(&option)
	}
	if scheduler == nil {
		scheduler = NewStdScheduler()
	}
	return &StatusMonitor{
		uniqueKey: uniqueKey,
		option:    option,
		scheduler: scheduler,
		sink:      sink,
		state:     StateIdle,
	}
}

func (m *StatusMonitor) SetOnTransition(fn OnTransition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = fn
}

func (m *StatusMonitor) SetOnReconnect(fn OnReconnect) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnect = fn
}

func (m *StatusMonitor) SetOnExhausted(fn OnExhausted) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExhausted = fn
}

func (m *StatusMonitor) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Exhausted 重连次数已经用完，并且之后没有再主动发起连接
func (m *StatusMonitor) Exhausted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exhausted
}

// HasTimer 是否存在未触发的定时器
func (m *StatusMonitor) HasTimer() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

// OnConnectRequest 上层主动发起连接之前调用
//
// 进入Handshaking状态，重置重连次数，并启动宽限定时器
//
// @return 已经关闭时返回false
//
func (m *StatusMonitor) OnConnectRequest() bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	from := m.state
	m.state = StateHandshaking
	m.retryCount = 0
	m.errNotified = false
	m.exhausted = false
	m.armLocked(timerKindGrace, time.Duration(m.option.ReconnectGraceMs)*time.Millisecond)
	fn := m.onTransition
	m.mu.Unlock()

	m.transitioned(fn, from, StateHandshaking)
	return true
}

// OnConnectAborted 连接请求没有真正发出（比如地址非法），回到Idle
func (m *StatusMonitor) OnConnectAborted() {
	m.mu.Lock()
	if m.closed || m.state != StateHandshaking {
		m.mu.Unlock()
		return
	}
	from := m.state
	m.state = StateIdle
	m.cancelTimerLocked()
	fn := m.onTransition
	m.mu.Unlock()

	m.transitioned(fn, from, StateIdle)
}

// OnStatusEvent 注册给连接层的回调
func (m *StatusMonitor) OnStatusEvent(event rtmp.StatusEvent) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	from := m.state
	var notifyStatus *BroadcastStatus
	var notifyErr error

	switch event.Code {
	case rtmp.StatusConnectSuccess:
		if m.state != StateHandshaking {
			base.Log.Warnf("[%s] connect success in unexpected state, ignore. state=%s", m.uniqueKey, m.state.ReadableString())
			break
		}
		m.state = StateReady
		m.cancelTimerLocked()
		m.retryCount = 0
		m.errNotified = false
		notifyStatus = statusPtr(StatusReady)
	case rtmp.StatusConnectFailed, rtmp.StatusConnectClosed:
		if m.state != StateHandshaking && m.state != StateReady && m.state != StateBroadcasting {
			base.Log.Warnf("[%s] connect failure in unexpected state, ignore. state=%s, err=%+v", m.uniqueKey, m.state.ReadableString(), event.Err)
			break
		}
		m.state = StateFailed
		if !m.errNotified {
			m.errNotified = true
			notifyErr = event.Err
			if notifyErr == nil {
				notifyErr = fmt.Errorf("%w. code=%s", base.ErrConnectFailed, event.Raw)
			}
		} else {
			base.Log.Infof("[%s] reconnect failed. attempt=%d, err=%+v", m.uniqueKey, m.retryCount, event.Err)
		}
		if m.timerKind != timerKindRetry && m.retryCount < m.option.MaxReconnectAttempts {
			m.armLocked(timerKindRetry, time.Duration(m.option.ReconnectIntervalMs)*time.Millisecond)
		}
	case rtmp.StatusPublishStart:
		if m.state != StateReady {
			base.Log.Warnf("[%s] publish start in unexpected state, ignore. state=%s", m.uniqueKey, m.state.ReadableString())
			break
		}
		m.state = StateBroadcasting
		notifyStatus = statusPtr(StatusBroadcasting)
	case rtmp.StatusUnpublishSuccess:
		if m.state != StateBroadcasting {
			base.Log.Warnf("[%s] unpublish success in unexpected state, ignore. state=%s", m.uniqueKey, m.state.ReadableString())
			break
		}
		m.state = StateReady
		notifyStatus = statusPtr(StatusReady)
	case rtmp.StatusPublishBadName:
		if m.state != StateReady && m.state != StateBroadcasting {
			base.Log.Warnf("[%s] publish rejected in unexpected state, ignore. state=%s", m.uniqueKey, m.state.ReadableString())
			break
		}
		notifyErr = fmt.Errorf("%w. code=%s", base.ErrPublishRejected, event.Raw)
	default:
		base.Log.Warnf("[%s] unrecognized status, ignore. code=%s", m.uniqueKey, event.Raw)
	}

	to := m.state
	fn := m.onTransition
	m.mu.Unlock()

	if from != to {
		m.transitioned(fn, from, to)
	}
	if notifyStatus != nil {
		m.sink.NotifyStatus(*notifyStatus)
	}
	if notifyErr != nil {
		m.sink.NotifyError(notifyErr)
	}
}

// Close 取消定时器，之后的事件全部忽略，可重复调用
func (m *StatusMonitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.cancelTimerLocked()
	m.state = StateIdle
	m.onTransition = nil
	m.onReconnect = nil
	m.onExhausted = nil
}

// ---------------------------------------------------------------------------------------------------------------------

func (m *StatusMonitor) onTimer(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.timerGen || m.timer == nil {
		// 已经被替换或者取消的定时器
		m.mu.Unlock()
		return
	}

	kind := m.timerKind
	m.timer = nil
	m.timerKind = timerKindNone

	if m.state == StateReady || m.state == StateBroadcasting {
		m.mu.Unlock()
		return
	}

	interval := time.Duration(m.option.ReconnectIntervalMs) * time.Millisecond
	switch kind {
	case timerKindGrace:
		base.Log.Warnf("[%s] no connect success in grace period, start periodic reconnect. state=%s", m.uniqueKey, m.state.ReadableString())
		m.armLocked(timerKindRetry, interval)
		m.mu.Unlock()
		return
	case timerKindRetry:
		if m.retryCount >= m.option.MaxReconnectAttempts {
			base.Log.Errorf("[%s] reconnect exhausted. attempts=%d", m.uniqueKey, m.retryCount)
			from := m.state
			m.state = StateFailed
			m.exhausted = true
			fn := m.onTransition
			exhausted := m.onExhausted
			m.mu.Unlock()

			// 最后一次重连可能还没有结果，不再等待
			if exhausted != nil {
				exhausted()
			}
			if from != StateFailed {
				m.transitioned(fn, from, StateFailed)
			}
			m.sink.NotifyError(fmt.Errorf("%w. attempts=%d", base.ErrReconnectExhausted, m.option.MaxReconnectAttempts))
			return
		}
		m.retryCount++
		attempt := m.retryCount
		from := m.state
		m.state = StateHandshaking
		m.armLocked(timerKindRetry, interval)
		base.Log.Infof("[%s] reconnect. attempt=%d/%d", m.uniqueKey, m.retryCount, m.option.MaxReconnectAttempts)
		fn := m.onTransition
		reconnect := m.onReconnect
		m.mu.Unlock()

		if from != StateHandshaking {
			m.transitioned(fn, from, StateHandshaking)
		}
		if reconnect != nil && !reconnect() {
			m.mu.Lock()
			if !m.closed && m.retryCount == attempt {
				m.retryCount--
			}
			m.mu.Unlock()
		}
		return
	}
	m.mu.Unlock()
}

// armLocked 替换定时器，调用时需持有mu
func (m *StatusMonitor) armLocked(kind timerKind, d time.Duration) {
	m.cancelTimerLocked()
	m.timerGen++
	gen := m.timerGen
	m.timerKind = kind
	m.timer = m.scheduler.AfterFunc(d, func() {
		m.onTimer(gen)
	})
	base.Log.Debugf("[%s] arm timer. kind=%s, duration=%s", m.uniqueKey, kind.ReadableString(), d)
}

func (m *StatusMonitor) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerKind = timerKindNone
	// 已经触发但还没有拿到锁的定时器回调通过gen识别
	m.timerGen++
}

func (m *StatusMonitor) transitioned(fn OnTransition, from, to ConnectionState) {
	base.Log.Infof("[%s] state %s -> %s", m.uniqueKey, from.ReadableString(), to.ReadableString())
	if fn != nil {
		fn(from, to)
	}
}

func statusPtr(s BroadcastStatus) *BroadcastStatus {
	return &s
}
