// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"errors"
	"fmt"
)

// ----- pkg/base ------------------------------------------------------------------------------------------------------

var (
	ErrInvalidUrl = errors.New("rtmppub.base: invalid url")
)

// ----- pkg/rtmp ------------------------------------------------------------------------------------------------------

var (
	ErrAmfInvalidType = errors.New("rtmppub.rtmp: invalid amf0 type")
	ErrAmfTooShort    = errors.New("rtmppub.rtmp: too short to unmarshal amf0 data")
	ErrAmfNotExist    = errors.New("rtmppub.rtmp: not exist")

	ErrRtmpShortBuffer   = errors.New("rtmppub.rtmp: buffer too short")
	ErrRtmpUnexpectedMsg = errors.New("rtmppub.rtmp: unexpected msg")

	// ErrConnectFailed 建连、握手、connect/createStream信令失败，也包含被对端关闭
	ErrConnectFailed = errors.New("rtmppub.rtmp: connect failed")

	// ErrNotConnected 当前状态不允许执行该操作
	ErrNotConnected = errors.New("rtmppub.rtmp: not connected")

	// ErrUnrecognizedStatus 只打日志，不回调给业务方
	ErrUnrecognizedStatus = errors.New("rtmppub.rtmp: unrecognized status code")

	ErrPublishRejected = errors.New("rtmppub.rtmp: publish rejected by server")

	ErrConnectionClosed = errors.New("rtmppub.rtmp: connection closed")
)

func NewErrAmfInvalidType(b byte) error {
	return fmt.Errorf("%w. b=%d", ErrAmfInvalidType, b)
}

func NewErrRtmpShortBuffer(need, actual int, msg string) error {
	return fmt.Errorf("%w. need=%d, actual=%d, msg=%s", ErrRtmpShortBuffer, need, actual, msg)
}

// NewErrConnectFailed 返回的error对 ErrConnectFailed 和 cause 都满足 errors.Is
func NewErrConnectFailed(cause error) error {
	if cause == nil {
		return ErrConnectFailed
	}
	return fmt.Errorf("%w: %w", ErrConnectFailed, cause)
}

// NewErrConnectionClosed 连接建立成功后被对端关闭或者读写出错，同时满足 ErrConnectFailed 和 ErrConnectionClosed
func NewErrConnectionClosed(cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, ErrConnectionClosed)
	}
	return fmt.Errorf("%w: %w: %w", ErrConnectFailed, ErrConnectionClosed, cause)
}

func NewErrUnrecognizedStatus(code string) error {
	return fmt.Errorf("%w. code=%s", ErrUnrecognizedStatus, code)
}

// ----- pkg/httpflv --------------------------------------------------------------------------------------------------

var (
	ErrFlvInvalidHeader = errors.New("rtmppub.httpflv: invalid flv header")
	ErrFlvFileNotOpened = errors.New("rtmppub.httpflv: file not opened")
	ErrFlvSourceStarted = errors.New("rtmppub.httpflv: source already started")
)

// ----- pkg/broadcast -------------------------------------------------------------------------------------------------

var (
	ErrSessionClosed      = errors.New("rtmppub.broadcast: session closed")
	ErrInvalidConfig      = errors.New("rtmppub.broadcast: invalid config")
	ErrReconnectExhausted = errors.New("rtmppub.broadcast: reconnect attempts exhausted")
)

func NewErrInvalidConfig(field string, value interface{}) error {
	return fmt.Errorf("%w. field=%s, value=%v", ErrInvalidConfig, field, value)
}

// ---------------------------------------------------------------------------------------------------------------------
