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
	"io"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabytes"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/rtmppub/pkg/base"
)

// ChunkComposer
//
// 读取chunk，并合并chunk，生成message返回给上层
//
type ChunkComposer struct {
	peerChunkSize uint32

	csid2stream map[int]*ChunkStream
}

func NewChunkComposer() *ChunkComposer {
	return &ChunkComposer{
		peerChunkSize: defaultChunkSize,
		csid2stream:   make(map[int]*ChunkStream),
	}
}

func (c *ChunkComposer) SetPeerChunkSize(val uint32) error {
	// 最高位必须为0
	if val == 0 || val > 0x7FFFFFFF {
		return fmt.Errorf("%w. invalid peer chunk size=%d", base.ErrRtmpUnexpectedMsg, val)
	}
	c.peerChunkSize = val
	return nil
}

func (c *ChunkComposer) PeerChunkSize() uint32 {
	return c.peerChunkSize
}

type OnCompleteMessage func(stream *ChunkStream) error

// RunLoop 将rtmp chunk合并为message
//
// @param cb:
//   @param cb.stream.msg:
//     注意，回调结束后，`msg`的内存块会被`ChunkComposer`重复使用。
//     如果业务方需要在回调结束后，依然持有`msg`，那么需要对`msg`进行拷贝。
//   @return: 如果cb返回的error不为nil，则`RunLoop`停止阻塞，并返回这个错误。
//
// @return 阻塞直到发生错误
//
func (c *ChunkComposer) RunLoop(reader io.Reader, cb OnCompleteMessage) error {
	bootstrap := make([]byte, 11)

	for {
		// 5.3.1.1. Chunk Basic Header
		// 读取fmt和csid
		if _, err := io.ReadFull(reader, bootstrap[:1]); err != nil {
			return err
		}

		chunkFmt := (bootstrap[0] >> 6) & 0x03
		csid := int(bootstrap[0] & 0x3f)

		// csid可能是变长的
		switch csid {
		case 0:
			if _, err := io.ReadFull(reader, bootstrap[:1]); err != nil {
				return err
			}
			csid = 64 + int(bootstrap[0])
		case 1:
			if _, err := io.ReadFull(reader, bootstrap[:2]); err != nil {
				return err
			}
			csid = 64 + int(bootstrap[0]) + int(bootstrap[1])*256
		}

		stream := c.getOrCreateStream(csid)

		// 5.3.1.2. Chunk Message Header
		// 当前chunk的fmt不同，Message Header包含的字段也不同，是变长
		switch chunkFmt {
		case 0:
			if _, err := io.ReadFull(reader, bootstrap[:11]); err != nil {
				return err
			}
			// 包头中为绝对时间戳
			stream.timestamp = bele.BeUint24(bootstrap)
			stream.header.MsgLen = bele.BeUint24(bootstrap[3:])
			stream.header.MsgTypeId = bootstrap[6]
			stream.header.MsgStreamId = int(bele.LeUint32(bootstrap[7:]))
		case 1:
			if _, err := io.ReadFull(reader, bootstrap[:7]); err != nil {
				return err
			}
			// 包头中为相对时间戳
			stream.timestamp = bele.BeUint24(bootstrap)
			stream.header.MsgLen = bele.BeUint24(bootstrap[3:])
			stream.header.MsgTypeId = bootstrap[6]
		case 2:
			if _, err := io.ReadFull(reader, bootstrap[:3]); err != nil {
				return err
			}
			// 包头中为相对时间戳
			stream.timestamp = bele.BeUint24(bootstrap)
		case 3:
			// noop
		}

		// 5.3.1.3 Extended Timestamp
		// fmt3的chunk沿用前一个chunk是否携带扩展时间戳
		if chunkFmt != 3 {
			stream.extTsFlag = stream.timestamp >= maxTimestampInMessageHeader
		}
		if stream.extTsFlag {
			if _, err := io.ReadFull(reader, bootstrap[:4]); err != nil {
				return err
			}
			stream.timestamp = bele.BeUint32(bootstrap)
		}
		if base.Log.GetOption().Level == nazalog.LevelTrace {
			base.Log.Tracef("[%p] RTMP_READ chunk.fmt=%d, csid=%d, header=%+v, timestamp=%d",
				c, chunkFmt, csid, stream.header, stream.timestamp)
		}

		if stream.header.MsgLen > maxMsgLen {
			return fmt.Errorf("%w. msg len too large. csid=%d, len=%d", base.ErrRtmpUnexpectedMsg, csid, stream.header.MsgLen)
		}

		// 一个message的第一个chunk，计算绝对时间戳
		if stream.msg.len() == 0 {
			if chunkFmt == 0 {
				stream.header.TimestampAbs = stream.timestamp
			} else {
				stream.header.TimestampAbs += stream.timestamp
			}
		}

		neededSize := stream.header.MsgLen - stream.msg.len()
		if neededSize > c.peerChunkSize {
			neededSize = c.peerChunkSize
		}
		stream.msg.reserve(neededSize)
		if _, err := io.ReadFull(reader, stream.msg.writable(neededSize)); err != nil {
			return err
		}
		stream.msg.produced(neededSize)

		if stream.msg.len() != stream.header.MsgLen {
			continue
		}

		// 对端设置了chunk size
		if stream.header.MsgTypeId == base.RtmpTypeIdSetChunkSize {
			if stream.msg.len() < 4 {
				return base.NewErrRtmpShortBuffer(4, int(stream.msg.len()), "set chunk size")
			}
			if err := c.SetPeerChunkSize(bele.BeUint32(stream.msg.bytes())); err != nil {
				return err
			}
		}

		stream.header.Csid = csid
		if base.Log.GetOption().Level == nazalog.LevelTrace {
			base.Log.Tracef("[%p] RTMP_READ cb. fmt=%d, csid=%d, header=%+v, timestamp=%d, hex=%s",
				c, chunkFmt, csid, stream.header, stream.timestamp, hex.Dump(nazabytes.Prefix(stream.msg.bytes(), 32)))
		}

		if stream.header.MsgTypeId == base.RtmpTypeIdAggregateMessage {
			if err := c.dispatchAggregate(stream, cb); err != nil {
				return err
			}
		} else if err := cb(stream); err != nil {
			return err
		}
		stream.msg.clear()
	}
}

// dispatchAggregate 拆分aggregate message，逐个回调sub message
func (c *ChunkComposer) dispatchAggregate(stream *ChunkStream, cb OnCompleteMessage) error {
	firstSubMessage := true
	baseTimestamp := uint32(0)

	sub := &ChunkStream{}
	sub.header.Csid = stream.header.Csid

	for stream.msg.len() != 0 {
		// 读取sub message的头
		if stream.msg.len() < 11 {
			return base.NewErrRtmpShortBuffer(11, int(stream.msg.len()), "parse rtmp aggregate sub message len")
		}
		b := stream.msg.bytes()
		sub.header.MsgTypeId = b[0]
		sub.header.MsgLen = bele.BeUint24(b[1:])
		sub.timestamp = bele.BeUint24(b[4:]) + uint32(b[7])<<24
		sub.header.MsgStreamId = int(bele.BeUint24(b[8:]))
		stream.msg.consumed(11)

		if firstSubMessage {
			baseTimestamp = sub.timestamp
			firstSubMessage = false
		}
		sub.header.TimestampAbs = stream.header.TimestampAbs + sub.timestamp - baseTimestamp

		// message包体
		if stream.msg.len() < sub.header.MsgLen {
			return base.NewErrRtmpShortBuffer(int(sub.header.MsgLen), int(stream.msg.len()), "parse rtmp aggregate sub message body")
		}
		sub.msg = StreamMsg{
			buf: stream.msg.bytes()[:sub.header.MsgLen],
			e:   sub.header.MsgLen,
		}
		stream.msg.consumed(sub.header.MsgLen)

		if err := cb(sub); err != nil {
			return err
		}

		// 跳过prev size字段
		if stream.msg.len() < 4 {
			return base.NewErrRtmpShortBuffer(4, int(stream.msg.len()), "parse rtmp aggregate prev message size")
		}
		stream.msg.consumed(4)
	}
	return nil
}

func (c *ChunkComposer) getOrCreateStream(csid int) *ChunkStream {
	stream, exist := c.csid2stream[csid]
	if !exist {
		stream = NewChunkStream()
		c.csid2stream[csid] = stream
	}
	return stream
}
