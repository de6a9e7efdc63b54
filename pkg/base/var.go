// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "github.com/q191201771/naza/pkg/nazalog"

var Log = nazalog.GetGlobalLogger()

// ----- rtmp --------------------
var (
	// RtmpLocalChunkSize 本端设置的 chunk size
	RtmpLocalChunkSize = 4096

	// RtmpWindowAcknowledgementSize 本端设置的窗口确认大小
	RtmpWindowAcknowledgementSize = 5000000
)

// ----- broadcast --------------------
var (
	// BroadcastDebugLogMaxCount 丢包等高频日志，在debug级别下最多打印的次数
	BroadcastDebugLogMaxCount = 16
)
