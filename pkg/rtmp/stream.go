// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"sync"

	"github.com/q191201771/naza/pkg/circularqueue"
	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/q191201771/rtmppub/pkg/base"
)

// IMsgWriter Stream 向下层发送数据的接口，一般由 ClientConnection 实现
type IMsgWriter interface {
	Publish(streamName string) error
	WriteMsg(msg base.RtmpMsg) error
}

type StreamOption struct {
	QueueSize int  // 待发送队列的大小，满了之后丢弃最老的数据
	MuteAudio bool // 静音时音频数据直接丢弃，不发送也不计入丢包
}

var defaultStreamOption = StreamOption{
	QueueSize: 1024,
}

type ModStreamOption func(option *StreamOption)

// Stream 将音视频数据源映射到rtmp的chunk stream上
//
// 生产者调用 Feed (或者通过 Source 回调)只会将数据放入队列，不会阻塞在网络IO上。
// 内部的发送协程将队列中的数据写入 IMsgWriter 。
//
type Stream struct {
	uniqueKey string
	option    StreamOption
	writer    IMsgWriter

	audio sourceBinding
	video sourceBinding

	mu             sync.Mutex
	cond           *sync.Cond
	queue          *circularqueue.CircularQueue
	started        bool
	disposed       bool
	waitKeyFrame   bool
	hasSent        bool
	lastTs         uint32
	videoSeqHeader *base.RtmpMsg
	aacSeqHeader   *base.RtmpMsg
	dropDump       base.LogDump

	sentCount    nazaatomic.Uint64
	droppedCount nazaatomic.Uint64

	disposeOnce sync.Once
	wg          sync.WaitGroup
}

// sourceBinding 单个轨道上绑定的数据源
type sourceBinding struct {
	opMu sync.Mutex // 串行化同一轨道上的绑定和解绑

	mu     sync.RWMutex // 回调时持有读锁，解绑时持有写锁，从而等待正在进行的回调结束
	src    Source
	gen    uint32
	active bool

	// 以下由Stream.mu保护
	rebase   bool // 替换之前的数据源后，时间戳需要接续
	based    bool
	tsOffset int64
}

func NewStream(uniqueKey string, writer IMsgWriter, modOptions ...ModStreamOption) *Stream {
	option := defaultStreamOption
	for _, fn := range modOptions {
		fn(&option)
	}
	if option.QueueSize <= 0 {
		option.QueueSize = defaultStreamOption.QueueSize
	}

	s := &Stream{
		uniqueKey: uniqueKey,
		option:    option,
		writer:    writer,
		queue:     circularqueue.New(option.QueueSize),
		dropDump:  base.NewLogDump(base.Log, base.BroadcastDebugLogMaxCount),
	}
	s.cond = sync.NewCond(&s.mu)

	s.wg.Add(1)
	go s.runWriteLoop()
	return s
}

// Publish 发送publish信令，不等待服务端的结果
func (s *Stream) Publish(streamName string) error {
	return s.writer.Publish(streamName)
}

// AttachAudioSource 如果已经绑定了数据源，先解绑之前的
func (s *Stream) AttachAudioSource(src Source) error {
	return s.attach(&s.audio, base.AvKindAudio, src)
}

func (s *Stream) AttachVideoSource(src Source) error {
	return s.attach(&s.video, base.AvKindVideo, src)
}

// DetachAudioSource 返回时，该数据源正在进行的回调已经结束，之后的回调被丢弃
//
// 注意，不要在数据源的回调中调用
//
func (s *Stream) DetachAudioSource() error {
	return s.detach(&s.audio, base.AvKindAudio)
}

func (s *Stream) DetachVideoSource() error {
	return s.detach(&s.video, base.AvKindVideo)
}

// Start 开始向下层发送数据
//
// 依次发送metadata、缓存的sequence header，之后视频从关键帧开始发送
//
// @param metadata: `@setDataFrame onMetaData`的message body，为nil时不发送
//
func (s *Stream) Start(metadata []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}

	base.Log.Infof("[%s] stream start. queued=%d", s.uniqueKey, s.queue.Size())
	s.clearQueueLocked()
	s.started = true
	s.waitKeyFrame = true

	if metadata != nil {
		s.pushLocked(base.RtmpMsg{
			Header: base.RtmpHeader{
				MsgTypeId:    base.RtmpTypeIdMetadata,
				MsgLen:       uint32(len(metadata)),
				TimestampAbs: s.lastTs,
			},
			Payload: metadata,
		})
	}
	if s.videoSeqHeader != nil {
		msg := *s.videoSeqHeader
		msg.Header.TimestampAbs = s.lastTs
		s.pushLocked(msg)
	}
	if s.aacSeqHeader != nil {
		msg := *s.aacSeqHeader
		msg.Header.TimestampAbs = s.lastTs
		s.pushLocked(msg)
	}
}

// Stop 暂停发送，队列中未发送的数据被丢弃，缓存的sequence header保留
func (s *Stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	base.Log.Infof("[%s] stream stop. queued=%d", s.uniqueKey, s.queue.Size())
	s.started = false
	s.clearQueueLocked()
}

// Feed 放入一帧数据，不阻塞
//
// 内部会拷贝 pkt.Payload
//
func (s *Stream) Feed(pkt base.AvPacket) {
	s.feed(pkt, nil)
}

// Dispose 解绑数据源，并等待发送协程退出，可重复调用
func (s *Stream) Dispose() {
	s.disposeOnce.Do(func() {
		_ = s.DetachAudioSource()
		_ = s.DetachVideoSource()

		s.mu.Lock()
		s.disposed = true
		s.started = false
		s.clearQueueLocked()
		s.cond.Broadcast()
		s.mu.Unlock()

		s.wg.Wait()
		base.Log.Infof("[%s] stream disposed. sent=%d, dropped=%d", s.uniqueKey, s.sentCount.Load(), s.droppedCount.Load())
	})
}

func (s *Stream) SentCount() uint64 {
	return s.sentCount.Load()
}

func (s *Stream) DroppedCount() uint64 {
	return s.droppedCount.Load()
}

func (s *Stream) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// ---------------------------------------------------------------------------------------------------------------------

func (s *Stream) attach(b *sourceBinding, kind base.AvKind, src Source) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	if err := s.detachLocked(b, kind); err != nil {
		base.Log.Warnf("[%s] stop previous %s source failed. err=%+v", s.uniqueKey, kind.ReadableString(), err)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return base.ErrSessionClosed
	}
	hasSent := s.hasSent
	s.mu.Unlock()

	b.mu.Lock()
	b.gen++
	gen := b.gen
	b.src = src
	b.active = true
	b.mu.Unlock()

	s.mu.Lock()
	b.rebase = hasSent
	b.based = false
	b.tsOffset = 0
	s.mu.Unlock()

	base.Log.Infof("[%s] attach %s source. gen=%d", s.uniqueKey, kind.ReadableString(), gen)
	err := src.Start(func(pkt base.AvPacket) {
		s.deliver(b, gen, kind, pkt)
	})
	if err != nil {
		b.mu.Lock()
		if b.gen == gen {
			b.src = nil
			b.active = false
		}
		b.mu.Unlock()
		return err
	}
	return nil
}

func (s *Stream) detach(b *sourceBinding, kind base.AvKind) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()
	return s.detachLocked(b, kind)
}

// detachLocked 调用时需持有b.opMu
func (s *Stream) detachLocked(b *sourceBinding, kind base.AvKind) error {
	// 等待正在进行的回调结束
	b.mu.Lock()
	src := b.src
	b.src = nil
	b.active = false
	b.mu.Unlock()

	if src == nil {
		return nil
	}
	base.Log.Infof("[%s] detach %s source.", s.uniqueKey, kind.ReadableString())
	return src.Stop()
}

func (s *Stream) deliver(b *sourceBinding, gen uint32, kind base.AvKind, pkt base.AvPacket) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.active || b.gen != gen {
		return
	}
	// 数据源没有填写kind时，使用绑定的轨道
	if pkt.Kind == base.AvKindUnknown {
		pkt.Kind = kind
	}
	s.feed(pkt, b)
}

func (s *Stream) feed(pkt base.AvPacket, b *sourceBinding) {
	if pkt.Kind != base.AvKindAudio && pkt.Kind != base.AvKindVideo {
		base.Log.Warnf("[%s] feed packet with unknown kind. kind=%d", s.uniqueKey, pkt.Kind)
		return
	}

	if pkt.Kind == base.AvKindAudio && s.option.MuteAudio {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}

	ts := pkt.Timestamp
	if b != nil {
		if !b.based {
			b.based = true
			if b.rebase {
				b.tsOffset = int64(s.lastTs) + 1 - int64(pkt.Timestamp)
			}
		}
		rebased := int64(pkt.Timestamp) + b.tsOffset
		if rebased < 0 {
			rebased = 0
		}
		ts = uint32(rebased)
	}

	msg := pkt.ToRtmpMsg()
	msg.Header.TimestampAbs = ts
	msg = msg.Clone()

	// sequence header无论是否开始发送都缓存下来
	if msg.IsVideoKeySeqHeader() {
		s.videoSeqHeader = &msg
	} else if msg.IsAacSeqHeader() {
		s.aacSeqHeader = &msg
	}

	if !s.started {
		return
	}

	if msg.Header.MsgTypeId == base.RtmpTypeIdVideo && !msg.IsVideoKeySeqHeader() && s.waitKeyFrame {
		if !isVideoKeyFrame(msg.Payload) {
			s.droppedCount.Increment()
			return
		}
		s.waitKeyFrame = false
		base.Log.Debugf("[%s] got first key frame. ts=%d", s.uniqueKey, ts)
	}

	s.pushLocked(msg)
}

// pushLocked 调用时需持有s.mu
func (s *Stream) pushLocked(msg base.RtmpMsg) {
	if s.queue.Full() {
		_, _ = s.queue.PopFront()
		s.droppedCount.Increment()
		if s.dropDump.ShouldDump() {
			base.Log.Warnf("[%s] queue full, drop front packet. size=%d", s.uniqueKey, s.queue.Size())
		}
	}
	_ = s.queue.PushBack(msg)
	if msg.Header.TimestampAbs > s.lastTs || !s.hasSent {
		s.lastTs = msg.Header.TimestampAbs
	}
	s.hasSent = true
	s.cond.Signal()
}

func (s *Stream) clearQueueLocked() {
	for !s.queue.Empty() {
		_, _ = s.queue.PopFront()
		s.droppedCount.Increment()
	}
}

func (s *Stream) runWriteLoop() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for s.queue.Empty() && !s.disposed {
			s.cond.Wait()
		}
		if s.disposed {
			s.mu.Unlock()
			return
		}
		item, _ := s.queue.PopFront()
		s.mu.Unlock()

		msg := item.(base.RtmpMsg)
		if err := s.writer.WriteMsg(msg); err != nil {
			s.droppedCount.Increment()
			s.mu.Lock()
			if s.dropDump.ShouldDump() {
				base.Log.Warnf("[%s] write msg failed. type=%d, ts=%d, err=%+v", s.uniqueKey, msg.Header.MsgTypeId, msg.Header.TimestampAbs, err)
			}
			s.mu.Unlock()
			continue
		}
		s.sentCount.Increment()
	}
}

// isVideoKeyFrame FLV video tag的FrameType为1
func isVideoKeyFrame(payload []byte) bool {
	return len(payload) > 0 && payload[0]>>4 == 1
}
