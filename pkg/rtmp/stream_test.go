// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/rtmppub/pkg/base"
	"go.uber.org/goleak"
)

type fakeMsgWriter struct {
	mu        sync.Mutex
	msgs      []base.RtmpMsg
	published []string

	entered chan struct{} // 每次进入WriteMsg时通知
	block   chan struct{} // 不为nil时，WriteMsg阻塞直到关闭
}

func (w *fakeMsgWriter) Publish(streamName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.published = append(w.published, streamName)
	return nil
}

func (w *fakeMsgWriter) WriteMsg(msg base.RtmpMsg) error {
	if w.entered != nil {
		w.entered <- struct{}{}
	}
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msg)
	return nil
}

func (w *fakeMsgWriter) snapshot() []base.RtmpMsg {
	w.mu.Lock()
	defer w.mu.Unlock()
	ret := make([]base.RtmpMsg, len(w.msgs))
	copy(ret, w.msgs)
	return ret
}

func (w *fakeMsgWriter) waitN(t *testing.T, n int) []base.RtmpMsg {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msgs := w.snapshot()
		if len(msgs) >= n {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("wait %d msgs timeout. got=%d", n, len(w.snapshot()))
	return nil
}

type fakeSource struct {
	mu      sync.Mutex
	cb      OnAvPacket
	stopped bool
}

func (f *fakeSource) Start(onAvPacket OnAvPacket) error {
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

// emit 模拟数据源即使被Stop之后也可能还有回调
func (f *fakeSource) emit(pkt base.AvPacket) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	cb(pkt)
}

type failSource struct{}

func (failSource) Start(onAvPacket OnAvPacket) error {
	return errors.New("open device failed")
}

func (failSource) Stop() error {
	return nil
}

var (
	avcSeqHeader  = []byte{0x17, 0x00, 0x00, 0x00, 0x00, 0x01, 0x64}
	avcKeyFrame   = []byte{0x17, 0x01, 0x00, 0x00, 0x00, 0xAA}
	avcInterFrame = []byte{0x27, 0x01, 0x00, 0x00, 0x00, 0xBB}
	aacSeqHeader  = []byte{0xAF, 0x00, 0x12, 0x10}
	aacRaw        = []byte{0xAF, 0x01, 0xCC}
)

func waitUntil(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("wait condition timeout")
}

func videoPkt(ts uint32, payload []byte) base.AvPacket {
	return base.AvPacket{Kind: base.AvKindVideo, Timestamp: ts, Payload: payload}
}

func audioPkt(ts uint32, payload []byte) base.AvPacket {
	return base.AvPacket{Kind: base.AvKindAudio, Timestamp: ts, Payload: payload}
}

// ---------------------------------------------------------------------------------------------------------------------

func TestStreamStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := &fakeMsgWriter{}
	s := NewStream("STREAM1", w)
	defer s.Dispose()

	// 开始之前只缓存sequence header
	s.Feed(videoPkt(0, avcSeqHeader))
	s.Feed(audioPkt(0, aacSeqHeader))
	s.Feed(videoPkt(40, avcKeyFrame))
	assert.Equal(t, false, s.IsStarted())

	metadata, err := BuildMetadata(MetadataParams{Width: 1280, Height: 720})
	assert.Equal(t, nil, err)
	s.Start(metadata)
	assert.Equal(t, true, s.IsStarted())

	s.Feed(videoPkt(80, avcInterFrame)) // 等待关键帧，丢弃
	s.Feed(audioPkt(81, aacRaw))
	s.Feed(videoPkt(120, avcKeyFrame))
	s.Feed(videoPkt(160, avcInterFrame))

	msgs := w.waitN(t, 6)
	assert.Equal(t, 6, len(msgs))
	assert.Equal(t, base.RtmpTypeIdMetadata, msgs[0].Header.MsgTypeId)
	assert.Equal(t, metadata, msgs[0].Payload)
	assert.Equal(t, true, msgs[1].IsVideoKeySeqHeader())
	assert.Equal(t, true, msgs[2].IsAacSeqHeader())
	assert.Equal(t, aacRaw, msgs[3].Payload)
	assert.Equal(t, uint32(81), msgs[3].Header.TimestampAbs)
	assert.Equal(t, true, msgs[4].IsAvcKeyNalu())
	assert.Equal(t, uint32(120), msgs[4].Header.TimestampAbs)
	assert.Equal(t, avcInterFrame, msgs[5].Payload)

	waitUntil(t, func() bool { return s.SentCount() == 6 })
	assert.Equal(t, uint64(1), s.DroppedCount())

	assert.Equal(t, nil, s.Publish("test110"))
	assert.Equal(t, []string{"test110"}, w.published)

	s.Dispose()
	s.Dispose()
	s.Feed(audioPkt(200, aacRaw))
	assert.Equal(t, 6, len(w.snapshot()))
}

func TestStreamStop(t *testing.T) {
	w := &fakeMsgWriter{}
	s := NewStream("STREAM2", w)
	defer s.Dispose()

	s.Start(nil)
	s.Feed(videoPkt(0, avcKeyFrame))
	w.waitN(t, 1)

	s.Stop()
	s.Feed(videoPkt(40, avcKeyFrame))
	s.Feed(audioPkt(41, aacRaw))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, len(w.snapshot()))

	// 重新开始后再次等待关键帧
	s.Start(nil)
	s.Feed(videoPkt(80, avcInterFrame))
	s.Feed(videoPkt(120, avcKeyFrame))
	msgs := w.waitN(t, 2)
	assert.Equal(t, uint32(120), msgs[1].Header.TimestampAbs)
}

func TestStreamQueueDropOldest(t *testing.T) {
	w := &fakeMsgWriter{
		entered: make(chan struct{}, 64),
		block:   make(chan struct{}),
	}
	s := NewStream("STREAM3", w, func(option *StreamOption) {
		option.QueueSize = 4
	})

	s.Start(nil)
	s.Feed(audioPkt(0, aacRaw))
	<-w.entered

	// 发送协程阻塞时，生产者不阻塞
	done := make(chan struct{})
	go func() {
		for i := 1; i <= 10; i++ {
			s.Feed(audioPkt(uint32(i), aacRaw))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("feed blocked")
	}
	close(w.block)

	waitUntil(t, func() bool { return s.SentCount()+s.DroppedCount() == 11 })
	assert.Equal(t, true, s.DroppedCount() > 0)

	// 保留的是最新的数据
	msgs := w.snapshot()
	assert.Equal(t, uint32(10), msgs[len(msgs)-1].Header.TimestampAbs)
	s.Dispose()
}

func TestStreamSwitchSource(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := &fakeMsgWriter{}
	s := NewStream("STREAM4", w)
	defer s.Dispose()
	s.Start(nil)

	src1 := &fakeSource{}
	assert.Equal(t, nil, s.AttachVideoSource(src1))
	src1.emit(videoPkt(1000, avcKeyFrame))
	src1.emit(videoPkt(1040, avcInterFrame))
	w.waitN(t, 2)

	src2 := &fakeSource{}
	assert.Equal(t, nil, s.AttachVideoSource(src2))
	assert.Equal(t, true, src1.stopped)

	// 解绑之后的回调被丢弃
	src1.emit(videoPkt(1080, avcInterFrame))

	src2.emit(base.AvPacket{Timestamp: 0, Payload: avcKeyFrame})
	src2.emit(videoPkt(40, avcInterFrame))
	msgs := w.waitN(t, 4)
	assert.Equal(t, 4, len(msgs))
	assert.Equal(t, uint32(1041), msgs[2].Header.TimestampAbs)
	assert.Equal(t, base.RtmpTypeIdVideo, msgs[2].Header.MsgTypeId)
	assert.Equal(t, uint32(1081), msgs[3].Header.TimestampAbs)

	assert.Equal(t, nil, s.DetachVideoSource())
	assert.Equal(t, true, src2.stopped)
	src2.emit(videoPkt(80, avcInterFrame))
	assert.Equal(t, nil, s.DetachVideoSource())

	// 音频轨道独立
	asrc := &fakeSource{}
	assert.Equal(t, nil, s.AttachAudioSource(asrc))
	assert.Equal(t, nil, s.DetachAudioSource())
	assert.Equal(t, true, asrc.stopped)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 4, len(w.snapshot()))
}

func TestStreamAttachCornerCase(t *testing.T) {
	w := &fakeMsgWriter{}
	s := NewStream("STREAM5", w)

	err := s.AttachVideoSource(failSource{})
	assert.IsNotNil(t, err)

	s.Dispose()
	err = s.AttachAudioSource(&fakeSource{})
	assert.Equal(t, base.ErrSessionClosed, err)

	// 未知类型被忽略
	s2 := NewStream("STREAM6", w)
	s2.Start(nil)
	s2.Feed(base.AvPacket{Timestamp: 1, Payload: aacRaw})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, len(w.snapshot()))
	s2.Dispose()
}

// 同一轨道上并发绑定，最终只有一个数据源处于绑定状态，其他的都被Stop
func TestStreamConcurrentAttach(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := &fakeMsgWriter{}
	s := NewStream("STREAM7", w)

	const n = 32
	srcs := make([]*fakeSource, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		srcs[i] = &fakeSource{}
		wg.Add(1)
		go func(src *fakeSource) {
			defer wg.Done()
			_ = s.AttachVideoSource(src)
		}(srcs[i])
	}
	wg.Wait()

	s.video.mu.RLock()
	curr := s.video.src
	s.video.mu.RUnlock()

	running := 0
	for _, src := range srcs {
		src.mu.Lock()
		if src.cb != nil && !src.stopped {
			running++
			assert.Equal(t, true, Source(src) == curr)
		}
		src.mu.Unlock()
	}
	assert.Equal(t, 1, running)

	s.Dispose()
	for _, src := range srcs {
		src.mu.Lock()
		assert.Equal(t, true, src.stopped)
		src.mu.Unlock()
	}
}

func TestStreamMuteAudio(t *testing.T) {
	w := &fakeMsgWriter{}
	s := NewStream("STREAM8", w, func(option *StreamOption) {
		option.MuteAudio = true
	})
	defer s.Dispose()

	s.Start(nil)
	s.Feed(audioPkt(0, aacSeqHeader))
	s.Feed(audioPkt(10, aacRaw))
	s.Feed(videoPkt(10, avcKeyFrame))

	w.waitN(t, 1)
	time.Sleep(20 * time.Millisecond)
	msgs := w.snapshot()
	assert.Equal(t, 1, len(msgs))
	assert.Equal(t, base.RtmpTypeIdVideo, msgs[0].Header.MsgTypeId)
	assert.Equal(t, uint64(0), s.DroppedCount())
}
