// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

// StatusCode 服务端信令中code字段解码后的值
//
// 只在协议层边界解码一次，上层状态机只处理该枚举，不处理原始字符串
//
type StatusCode int

const (
	StatusUnknown StatusCode = iota
	StatusConnectSuccess
	StatusConnectFailed // 包含被服务端拒绝
	StatusConnectClosed // 包含被对端关闭，以及读写出错
	StatusPublishStart
	StatusPublishBadName
	StatusUnpublishSuccess
)

func (c StatusCode) ReadableString() string {
	switch c {
	case StatusConnectSuccess:
		return "ConnectSuccess"
	case StatusConnectFailed:
		return "ConnectFailed"
	case StatusConnectClosed:
		return "ConnectClosed"
	case StatusPublishStart:
		return "PublishStart"
	case StatusPublishBadName:
		return "PublishBadName"
	case StatusUnpublishSuccess:
		return "UnpublishSuccess"
	}
	return "Unknown"
}

const (
	CodeNetConnectionConnectSuccess    = "NetConnection.Connect.Success"
	CodeNetConnectionConnectFailed     = "NetConnection.Connect.Failed"
	CodeNetConnectionConnectRejected   = "NetConnection.Connect.Rejected"
	CodeNetConnectionConnectInvalidApp = "NetConnection.Connect.InvalidApp"
	CodeNetConnectionConnectClosed     = "NetConnection.Connect.Closed"
	CodeNetStreamPublishStart          = "NetStream.Publish.Start"
	CodeNetStreamPublishBadName        = "NetStream.Publish.BadName"
	CodeNetStreamPublishDenied         = "NetStream.Publish.Denied"
	CodeNetStreamUnpublishSuccess      = "NetStream.Unpublish.Success"
)

func DecodeStatusCode(code string) StatusCode {
	switch code {
	case CodeNetConnectionConnectSuccess:
		return StatusConnectSuccess
	case CodeNetConnectionConnectFailed, CodeNetConnectionConnectRejected, CodeNetConnectionConnectInvalidApp:
		return StatusConnectFailed
	case CodeNetConnectionConnectClosed:
		return StatusConnectClosed
	case CodeNetStreamPublishStart:
		return StatusPublishStart
	case CodeNetStreamPublishBadName, CodeNetStreamPublishDenied:
		return StatusPublishBadName
	case CodeNetStreamUnpublishSuccess:
		return StatusUnpublishSuccess
	}
	return StatusUnknown
}

// StatusEvent 连接上发生的状态事件，回调后不再持有
type StatusEvent struct {
	Code StatusCode
	Raw  string          // 原始code字符串，本地产生的事件(比如网络错误)为空
	Info ObjectPairArray // onStatus/_result/_error中的info object，可能为nil
	Err  error           // ConnectFailed/ConnectClosed时不为nil
}

// NewStatusEventFromInfo 从服务端信令的info object解码
func NewStatusEventFromInfo(info ObjectPairArray) StatusEvent {
	raw, _ := info.FindString("code")
	return StatusEvent{
		Code: DecodeStatusCode(raw),
		Raw:  raw,
		Info: info,
	}
}

type OnStatusEvent func(event StatusEvent)
