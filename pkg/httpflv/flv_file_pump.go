// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package httpflv

import (
	"time"

	"github.com/q191201771/naza/pkg/mock"
	"github.com/q191201771/naza/pkg/nazaatomic"
	"github.com/q191201771/rtmppub/pkg/base"
)

var Clock = mock.NewStdClock()

// maxSleepSlice 等待期间检查是否被停止的间隔
var maxSleepSlice = 20 * time.Millisecond

// FlvFilePumpOption
//
// 将tag按时间戳间隔缓慢（类似于ffmpeg的-re）返回
//
type FlvFilePumpOption struct {
	IsRecursive bool // 如果为true，则循环返回文件内容（类似于ffmpeg的-stream_loop -1）
}

var defaultFlvFilePumpOption = FlvFilePumpOption{
	IsRecursive: false,
}

type FlvFilePump struct {
	option  FlvFilePumpOption
	stopped nazaatomic.Bool
}

type ModFlvFilePumpOption func(option *FlvFilePumpOption)

func NewFlvFilePump(modOptions ...ModFlvFilePumpOption) *FlvFilePump {
	option := defaultFlvFilePumpOption
	for _, fn := range modOptions {
		fn(&option)
	}

	return &FlvFilePump{option: option}
}

type OnPumpFlvTag func(tag Tag) bool

// Pump
//
// @param onFlvTag 如果回调中返回false，则停止Pump
//
func (f *FlvFilePump) Pump(filename string, onFlvTag OnPumpFlvTag) error {
	// 一次性将文件所有内容读入内存，后续不再读取文件
	tags, err := ReadAllTagsFromFlvFile(filename)
	if err != nil {
		return err
	}

	return f.PumpWithTags(tags, onFlvTag)
}

// Stop 可以在其他协程中调用，正在等待的 PumpWithTags 会尽快返回
func (f *FlvFilePump) Stop() {
	f.stopped.Store(true)
}

// PumpWithTags @return error 暂时只做预留，目前只会返回nil
//
func (f *FlvFilePump) PumpWithTags(tags []Tag, onFlvTag OnPumpFlvTag) error {
	var totalBaseTs uint32 // 整体的基础时间戳。每轮最后更新

	var hasReadThisBaseTs bool
	var thisBaseTs uint32 // 每一轮的第一个tag时间戳

	var prevTagTs uint32 // 上一个tag的时间戳

	var hasReadTotalFirstTag bool
	var totalFirstTagTs uint32  // 第一轮的第一个tag的时间戳
	var totalFirstTagTick int64 // 第一轮的第一个tag的物理时间

	const addTsBetweenRound = 1

	if len(tags) == 0 {
		return nil
	}

	// 循环一次，代表遍历文件一次
	for roundIndex := 0; ; roundIndex++ {
		base.Log.Debugf("new round. index=%d", roundIndex)

		hasReadThisBaseTs = false

		// 遍历所有tag数据
		for _, tag := range tags {
			if f.stopped.Load() {
				return nil
			}

			// metadata只在第一轮发送一次
			if tag.IsMetadata() {
				if totalBaseTs == 0 {
					tag.Header.Timestamp = 0
					if !onFlvTag(tag) {
						return nil
					}
				}
				continue
			}

			// 修改时间戳
			// 使得不同轮依然线性增长
			if !hasReadThisBaseTs {
				// 本轮第一个tag

				thisBaseTs = tag.Header.Timestamp
				hasReadThisBaseTs = true

				tag.Header.Timestamp = totalBaseTs
			} else {
				tag.Header.Timestamp = totalBaseTs + tag.Header.Timestamp - thisBaseTs
			}

			// 修改时间戳
			// 如果时间戳比前一个tag的还小，可能发生了跳跃，我们直接设置为上一包的值+1，然后不sleep直接发送
			if tag.Header.Timestamp < prevTagTs {
				tag.Header.Timestamp = prevTagTs + 1
			}

			if hasReadTotalFirstTag {
				// 当前时间戳与第一轮的第一个tag的时间戳差值
				diffTs := tag.Header.Timestamp - totalFirstTagTs

				// 当前物理时间与第一轮的第一个tag的物理时间差值
				diffTick := Clock.Now().UnixNano()/1000000 - totalFirstTagTick

				// 如果还没到物理时间差值，就sleep
				if diffTick < int64(diffTs) {
					if !f.sleep(time.Duration(int64(diffTs)-diffTick) * time.Millisecond) {
						return nil
					}
				}
			} else {
				// 第一轮的第一个tag，记录下来

				totalFirstTagTick = Clock.Now().UnixNano() / 1000000
				totalFirstTagTs = tag.Header.Timestamp
				hasReadTotalFirstTag = true
			}

			if !onFlvTag(tag) {
				return nil
			}

			prevTagTs = tag.Header.Timestamp
		}

		totalBaseTs = prevTagTs + addTsBetweenRound

		if !f.option.IsRecursive {
			break
		}
	}
	return nil
}

// sleep 被 Stop 时返回false
func (f *FlvFilePump) sleep(d time.Duration) bool {
	for d > 0 {
		if f.stopped.Load() {
			return false
		}
		slice := d
		if slice > maxSleepSlice {
			slice = maxSleepSlice
		}
		Clock.Sleep(slice)
		d -= slice
	}
	return !f.stopped.Load()
}
