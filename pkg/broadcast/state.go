// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package broadcast

// ConnectionState 推流会话的连接状态，只在 StatusMonitor 内部迁移
type ConnectionState int

const (
	StateIdle         ConnectionState = iota // 未连接
	StateHandshaking                         // 建连、握手、connect/createStream信令中
	StateReady                               // 已连接，未推流
	StateBroadcasting                        // 推流中
	StateFailed                              // 连接失败或者被关闭，等待重连或者上层关闭
)

func (s ConnectionState) ReadableString() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateHandshaking:
		return "Handshaking"
	case StateReady:
		return "Ready"
	case StateBroadcasting:
		return "Broadcasting"
	case StateFailed:
		return "Failed"
	}
	return "Unknown"
}

// BroadcastStatus 通知给上层的状态
type BroadcastStatus int

const (
	StatusIdle BroadcastStatus = iota
	StatusReady
	StatusBroadcasting
)

func (s BroadcastStatus) ReadableString() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusReady:
		return "ready"
	case StatusBroadcasting:
		return "broadcasting"
	}
	return "unknown"
}
