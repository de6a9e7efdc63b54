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
	"errors"
	"sync"

	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/q191201771/rtmppub/pkg/base"
	"github.com/q191201771/rtmppub/pkg/rtmp"
)

// IConnection Session 使用的连接层，默认为 rtmp.ClientConnection
type IConnection interface {
	Connect(ctx context.Context, rawUrl string) error
	Publish(streamName string) error
	Unpublish() error
	WriteMsg(msg base.RtmpMsg) error
	SetStatusListener(listener rtmp.OnStatusEvent)
	GetStat() base.StatSession
	UpdateStat(intervalSec uint32)

	// Disconnect 断开当前的连接（包括还在进行中的连接），之后仍然可以再次 Connect
	Disconnect() error
	Close() error
}

type SessionOption struct {
	ConnectTimeoutMs     int // 单次连接的超时
	ReconnectGraceMs     int
	ReconnectIntervalMs  int
	MaxReconnectAttempts int
	QueueSize            int // 待发送音视频数据的队列大小

	HandshakeComplexFlag bool

	// 以下为空时使用默认值
	Executor   Executor    // 回调上层的执行环境，默认为Session内部创建的 SerialExecutor
	Scheduler  Scheduler   // 默认为 StdScheduler
	Connection IConnection // 默认为 rtmp.ClientConnection
}

var defaultSessionOption = SessionOption{
	ConnectTimeoutMs:     10000,
	ReconnectGraceMs:     defaultStatusMonitorOption.ReconnectGraceMs,
	ReconnectIntervalMs:  defaultStatusMonitorOption.ReconnectIntervalMs,
	MaxReconnectAttempts: defaultStatusMonitorOption.MaxReconnectAttempts,
	QueueSize:            1024,
}

type ModSessionOption func(option *SessionOption)

// Session 一次推流会话，持有连接、流、状态机以及回调
//
// 每次推流创建一个，不存在全局单例。协程安全。
//
type Session struct {
	uniqueKey string
	config    StreamConfig
	option    SessionOption
	metadata  []byte

	conn        IConnection
	stream      *rtmp.Stream
	monitor     *StatusMonitor
	sink        *CallbackSink
	ownExecutor *SerialExecutor
	reconnectMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	closed    nazaatomic.Bool
	closeOnce sync.Once
}

// NewSession
//
// @param config: 拷贝一份，之后不可修改
//
// @return 参数不合法时返回满足 base.ErrInvalidConfig 或 base.ErrInvalidUrl 的错误
//
func NewSession(config StreamConfig, modOptions ...ModSessionOption) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	option := defaultSessionOption
	for _, fn := range modOptions {
		fn(&option)
	}
	if option.ReconnectGraceMs <= 0 {
		return nil, base.NewErrInvalidConfig("ReconnectGraceMs", option.ReconnectGraceMs)
	}
	if option.ReconnectIntervalMs <= 0 {
		return nil, base.NewErrInvalidConfig("ReconnectIntervalMs", option.ReconnectIntervalMs)
	}
	if option.MaxReconnectAttempts <= 0 {
		return nil, base.NewErrInvalidConfig("MaxReconnectAttempts", option.MaxReconnectAttempts)
	}

	metadata, err := rtmp.BuildMetadata(config.MetadataParams())
	if err != nil {
		return nil, err
	}
	if metadata, err = rtmp.MetadataEnsureWithSdf(metadata); err != nil {
		return nil, err
	}

	s := &Session{
		uniqueKey: base.GenUkBroadcastSession(),
		config:    config,
		option:    option,
		metadata:  metadata,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	executor := option.Executor
	if executor == nil {
		s.ownExecutor = NewSerialExecutor()
		executor = s.ownExecutor
	}
	s.sink = NewCallbackSink(s.uniqueKey, executor)

	s.monitor = NewStatusMonitor(s.uniqueKey, option.Scheduler, s.sink, func(mo *StatusMonitorOption) {
		mo.ReconnectGraceMs = option.ReconnectGraceMs
		mo.ReconnectIntervalMs = option.ReconnectIntervalMs
		mo.MaxReconnectAttempts = option.MaxReconnectAttempts
	})
	s.monitor.SetOnTransition(s.onTransition)
	s.monitor.SetOnReconnect(s.reconnect)
	s.monitor.SetOnExhausted(s.onExhausted)

	s.conn = option.Connection
	if s.conn == nil {
		s.conn = rtmp.NewClientConnection(func(co *rtmp.ClientConnectionOption) {
			co.ConnectTimeoutMs = option.ConnectTimeoutMs
			co.HandshakeComplexFlag = option.HandshakeComplexFlag
		})
	}
	s.conn.SetStatusListener(s.monitor.OnStatusEvent)

	s.stream = rtmp.NewStream(s.uniqueKey, s.conn, func(so *rtmp.StreamOption) {
		so.QueueSize = option.QueueSize
		so.MuteAudio = config.Audio.Muted
	})

	base.Log.Infof("[%s] lifecycle new broadcast Session. url=%s", s.uniqueKey, config.Url)
	return s, nil
}

func (s *Session) UniqueKey() string {
	return s.uniqueKey
}

// Config 返回的是拷贝
func (s *Session) Config() StreamConfig {
	return s.config
}

// SetObserver 只能注册一个，后注册的覆盖先注册的
func (s *Session) SetObserver(observer Observer) {
	s.sink.SetObserver(observer)
}

// Connect 阻塞直到连接成功、失败或者超时
//
// 连接失败时除了返回错误，也会通过 Observer.OnError 通知，并在之后周期性重连
//
func (s *Session) Connect(ctx context.Context) error {
	if s.closed.Load() {
		return base.ErrSessionClosed
	}
	if !s.monitor.OnConnectRequest() {
		return base.ErrSessionClosed
	}

	// Close 时取消正在进行的连接
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	err := s.conn.Connect(ctx, s.config.Url)
	if err != nil && errors.Is(err, base.ErrInvalidUrl) {
		s.monitor.OnConnectAborted()
	}
	if err != nil && s.closed.Load() {
		return base.ErrSessionClosed
	}
	return err
}

// Publish 不等待服务端的结果，结果通过 Observer.OnStatus 通知
//
// @param streamName: 为空时使用配置中的stream name，配置中也为空时使用url中的stream name
//
func (s *Session) Publish(streamName string) error {
	if s.closed.Load() {
		return base.ErrSessionClosed
	}
	st := s.monitor.State()
	if st != StateReady && st != StateBroadcasting {
		return base.ErrNotConnected
	}
	if streamName == "" {
		streamName = s.config.StreamName
	}
	return s.stream.Publish(streamName)
}

func (s *Session) Unpublish() error {
	if s.closed.Load() {
		return base.ErrSessionClosed
	}
	if s.monitor.State() != StateBroadcasting {
		return base.ErrNotConnected
	}
	s.stream.Stop()
	return s.conn.Unpublish()
}

func (s *Session) AttachAudioSource(src rtmp.Source) error {
	if s.closed.Load() {
		return base.ErrSessionClosed
	}
	return s.stream.AttachAudioSource(src)
}

func (s *Session) AttachVideoSource(src rtmp.Source) error {
	if s.closed.Load() {
		return base.ErrSessionClosed
	}
	return s.stream.AttachVideoSource(src)
}

// SwitchVideoSource 推流过程中切换视频源（比如切换摄像头），不中断rtmp连接
func (s *Session) SwitchVideoSource(src rtmp.Source) error {
	base.Log.Infof("[%s] switch video source.", s.uniqueKey)
	return s.AttachVideoSource(src)
}

func (s *Session) DetachAudioSource() error {
	return s.stream.DetachAudioSource()
}

func (s *Session) DetachVideoSource() error {
	return s.stream.DetachVideoSource()
}

// Feed 不通过 Source ，直接放入一帧数据，不阻塞
func (s *Session) Feed(pkt base.AvPacket) {
	if s.closed.Load() {
		return
	}
	s.stream.Feed(pkt)
}

func (s *Session) State() ConnectionState {
	return s.monitor.State()
}

func (s *Session) UpdateStat(intervalSec uint32) {
	s.conn.UpdateStat(intervalSec)
}

func (s *Session) Stat() base.StatSession {
	stat := s.conn.GetStat()
	stat.SentPackets = s.stream.SentCount()
	stat.DroppedPackets = s.stream.DroppedCount()
	return stat
}

// Close 可在任意协程中调用，可重复调用
//
// 返回后，不会再处理连接上的事件，也不会再开始新的回调
//
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		base.Log.Infof("[%s] lifecycle dispose broadcast Session.", s.uniqueKey)
		s.closed.Store(true)

		s.sink.Close()
		s.monitor.Close()
		s.cancel()

		// 注意，不持有monitor的锁
		if cerr := s.conn.Close(); cerr != nil {
			err = nazaerrors.Wrap(cerr)
		}
		s.stream.Dispose()
		if s.ownExecutor != nil {
			s.ownExecutor.Close()
		}
	})
	return err
}

// ---------------------------------------------------------------------------------------------------------------------

func (s *Session) onTransition(from, to ConnectionState) {
	if to == StateBroadcasting {
		s.stream.Start(s.metadata)
		return
	}
	if from == StateBroadcasting {
		s.stream.Stop()
	}
}

// reconnect 重连定时器协程中调用，阻塞直到本次连接结束
//
// @return 没有发起连接时返回false
//
func (s *Session) reconnect() bool {
	if s.closed.Load() {
		return false
	}
	// 上一次重连还没有结束
	if !s.reconnectMu.TryLock() {
		base.Log.Warnf("[%s] previous reconnect still in progress, skip.", s.uniqueKey)
		return false
	}
	defer s.reconnectMu.Unlock()

	if err := s.conn.Connect(s.ctx, s.config.Url); err != nil {
		base.Log.Warnf("[%s] reconnect failed. err=%+v", s.uniqueKey, err)
	}
	return true
}

// onExhausted 重连次数用完，断开最后一次还没有结果的连接，避免状态为Failed时连接却还存在
func (s *Session) onExhausted() {
	if s.closed.Load() || !s.monitor.Exhausted() {
		return
	}
	if err := s.conn.Disconnect(); err != nil {
		base.Log.Warnf("[%s] disconnect failed. err=%+v", s.uniqueKey, err)
	}
}
