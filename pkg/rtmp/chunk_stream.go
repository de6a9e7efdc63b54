// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"encoding/hex"
	"fmt"

	"github.com/q191201771/rtmppub/pkg/base"
)

const initMsgLen = 4096

// StreamMsg 单个chunk stream上正在合并的message的缓存
type StreamMsg struct {
	buf []byte
	b   uint32 // 读取起始位置
	e   uint32 // 读取结束位置，写入起始位置
}

// ChunkStream 对应一个csid
type ChunkStream struct {
	header base.RtmpHeader
	msg    StreamMsg

	extTsFlag bool   // 最近一个fmt0/1/2的chunk是否携带扩展时间戳
	timestamp uint32 // 注意，是rtmp chunk协议header中的时间戳，可能是绝对的，也可能是相对的。上层不应该使用这个字段，而应该使用Header.TimestampAbs
}

func NewChunkStream() *ChunkStream {
	return &ChunkStream{
		msg: StreamMsg{
			buf: make([]byte, initMsgLen),
		},
	}
}

// 序列化成可读字符串，一般用于发生错误时打印日志
func (stream *ChunkStream) toDebugString() string {
	// 注意，这里打印的二进制数据的起始位置是从 0 开始，而不是 msg.b 位置
	return fmt.Sprintf("header=%+v, b=%d, hex=%s",
		stream.header, stream.msg.b, hex.Dump(stream.msg.buf[:stream.msg.e]))
}

// 注意，Payload引用的是内部内存块
func (stream *ChunkStream) toAvMsg() base.RtmpMsg {
	return base.RtmpMsg{
		Header:  stream.header,
		Payload: stream.msg.bytes(),
	}
}

// ---------------------------------------------------------------------------------------------------------------------

// 确保可写空间，如果不够会扩容
func (msg *StreamMsg) reserve(n uint32) {
	if uint32(len(msg.buf))-msg.e >= n {
		return
	}
	l := msg.len()
	need := l + n
	newCap := uint32(len(msg.buf))
	if newCap == 0 {
		newCap = initMsgLen
	}
	for newCap < need {
		newCap <<= 1
	}
	nb := make([]byte, newCap)
	copy(nb, msg.buf[msg.b:msg.e])
	msg.buf = nb
	msg.b = 0
	msg.e = l
}

// 写入位置的切片，长度为n，调用前需要先调用reserve
func (msg *StreamMsg) writable(n uint32) []byte {
	return msg.buf[msg.e : msg.e+n]
}

// 可读长度
func (msg *StreamMsg) len() uint32 {
	return msg.e - msg.b
}

// 写入数据后调用
func (msg *StreamMsg) produced(n uint32) {
	msg.e += n
}

// 读取数据后调用
func (msg *StreamMsg) consumed(n uint32) {
	msg.b += n
}

// 清空，空闲内存空间保留不释放
func (msg *StreamMsg) clear() {
	msg.b = 0
	msg.e = 0
}

func (msg *StreamMsg) bytes() []byte {
	return msg.buf[msg.b:msg.e]
}

func (msg *StreamMsg) peekStringWithType() (string, error) {
	str, _, err := Amf0.ReadString(msg.bytes())
	return str, err
}

func (msg *StreamMsg) readStringWithType() (string, error) {
	str, l, err := Amf0.ReadString(msg.bytes())
	if err == nil {
		msg.consumed(uint32(l))
	}
	return str, err
}

func (msg *StreamMsg) readNumberWithType() (int, error) {
	val, l, err := Amf0.ReadNumber(msg.bytes())
	if err == nil {
		msg.consumed(uint32(l))
	}
	return int(val), err
}

func (msg *StreamMsg) readObjectWithType() (ObjectPairArray, error) {
	opa, l, err := Amf0.ReadObjectOrArray(msg.bytes())
	if err == nil {
		msg.consumed(uint32(l))
	}
	return opa, err
}

func (msg *StreamMsg) readNull() error {
	l, err := Amf0.ReadNull(msg.bytes())
	if err == nil {
		msg.consumed(uint32(l))
	}
	return err
}

// readNullOrObject command object位置上，部分服务端填null，部分填object
func (msg *StreamMsg) readNullOrObject() (ObjectPairArray, error) {
	b := msg.bytes()
	if len(b) > 0 && b[0] == Amf0TypeMarkerNull {
		return nil, msg.readNull()
	}
	return msg.readObjectWithType()
}

// readAny 读取任意类型，信令尾部可选字段使用
func (msg *StreamMsg) readAny() (interface{}, error) {
	v, l, err := Amf0.ReadAny(msg.bytes())
	if err == nil {
		msg.consumed(uint32(l))
	}
	return v, err
}
