// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package httpflv

import (
	"sync"

	"github.com/q191201771/rtmppub/pkg/base"
	"github.com/q191201771/rtmppub/pkg/rtmp"
)

type TagSourceOption struct {
	Kind        base.AvKind // 只回调该类型的数据，AvKindUnknown 表示音频和视频都回调
	IsRecursive bool        // 循环回放
}

var defaultTagSourceOption = TagSourceOption{
	Kind:        base.AvKindUnknown,
	IsRecursive: false,
}

type ModTagSourceOption func(option *TagSourceOption)

// TagSource 按时间戳节奏回放FLV tag，实现了 rtmp.Source
//
// 每次 Start 都从第一个tag开始回放，metadata tag被忽略
//
type TagSource struct {
	tags   []Tag
	option TagSourceOption

	mu   sync.Mutex
	pump *FlvFilePump
	done chan struct{}
}

var _ rtmp.Source = &TagSource{}

func NewTagSource(tags []Tag, modOptions ...ModTagSourceOption) *TagSource {
	option := defaultTagSourceOption
	for _, fn := range modOptions {
		fn(&option)
	}
	return &TagSource{
		tags:   tags,
		option: option,
	}
}

func NewTagSourceFromFile(filename string, modOptions ...ModTagSourceOption) (*TagSource, error) {
	tags, err := ReadAllTagsFromFlvFile(filename)
	if err != nil {
		return nil, err
	}
	return NewTagSource(tags, modOptions...), nil
}

func (s *TagSource) Start(onAvPacket rtmp.OnAvPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pump != nil {
		return base.ErrFlvSourceStarted
	}

	pump := NewFlvFilePump(func(option *FlvFilePumpOption) {
		option.IsRecursive = s.option.IsRecursive
	})
	done := make(chan struct{})
	s.pump = pump
	s.done = done

	base.Log.Debugf("tag source start. tags=%d, kind=%s, recursive=%v", len(s.tags), s.option.Kind.ReadableString(), s.option.IsRecursive)
	go func() {
		defer close(done)
		_ = pump.PumpWithTags(s.tags, func(tag Tag) bool {
			pkt, ok := tag.ToAvPacket()
			if !ok {
				return true
			}
			if s.option.Kind != base.AvKindUnknown && pkt.Kind != s.option.Kind {
				return true
			}
			onAvPacket(pkt)
			return true
		})
		base.Log.Debugf("tag source pump done.")
	}()
	return nil
}

// Stop 等待回放协程退出，之后不会再有回调。没有 Start 时直接返回nil
//
// 注意，不要在 OnAvPacket 回调中调用
//
func (s *TagSource) Stop() error {
	s.mu.Lock()
	pump := s.pump
	done := s.done
	s.pump = nil
	s.done = nil
	s.mu.Unlock()

	if pump == nil {
		return nil
	}
	pump.Stop()
	<-done
	return nil
}

// Wait 等待回放结束，非循环模式下全部tag回放完后返回
func (s *TagSource) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}
