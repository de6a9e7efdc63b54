// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package broadcast

import (
	"sync"

	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/q191201771/rtmppub/pkg/base"
)

// Observer 由上层实现，接收状态变化以及错误
type Observer interface {
	OnStatus(status BroadcastStatus)
	OnError(err error)
}

// CallbackSink 将通知投递到 Executor 中回调给唯一的 Observer
//
// 投递后不等待回调完成。 Close 之后不会再开始新的回调。
//
type CallbackSink struct {
	uniqueKey string
	executor  Executor

	mu       sync.Mutex
	observer Observer
	closed   nazaatomic.Bool
}

func NewCallbackSink(uniqueKey string, executor Executor) *CallbackSink {
	if executor == nil {
		executor = InlineExecutor{}
	}
	return &CallbackSink{
		uniqueKey: uniqueKey,
		executor:  executor,
	}
}

// SetObserver 只能注册一个，后注册的覆盖先注册的
func (s *CallbackSink) SetObserver(observer Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = observer
}

func (s *CallbackSink) NotifyStatus(status BroadcastStatus) {
	base.Log.Infof("[%s] notify status. status=%s", s.uniqueKey, status.ReadableString())
	s.post(func(observer Observer) {
		observer.OnStatus(status)
	})
}

func (s *CallbackSink) NotifyError(err error) {
	base.Log.Warnf("[%s] notify error. err=%+v", s.uniqueKey, err)
	s.post(func(observer Observer) {
		observer.OnError(err)
	})
}

// Close 可重复调用
func (s *CallbackSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed.Store(true)
	s.observer = nil
}

func (s *CallbackSink) post(fn func(observer Observer)) {
	if s.closed.Load() {
		return
	}
	s.executor.Post(func() {
		s.mu.Lock()
		if s.closed.Load() {
			s.mu.Unlock()
			return
		}
		observer := s.observer
		s.mu.Unlock()

		if observer != nil {
			fn(observer)
		}
	})
}
