// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package broadcast

import "time"

type Timer interface {
	// Stop 返回false表示定时器已经触发或者已经被停止
	Stop() bool
}

// Scheduler 定时器的来源，测试时可以替换成模拟时间
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type StdScheduler struct{}

func NewStdScheduler() StdScheduler {
	return StdScheduler{}
}

func (StdScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
