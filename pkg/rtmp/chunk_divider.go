// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/rtmppub/pkg/base"
)

// Message2Chunks
//
// 第一个chunk使用fmt0，后续chunk使用fmt3，不参考前一个message的头字段
// 时间戳超过3字节时，每个chunk都携带扩展时间戳
//
// @param header: 使用了其中的Csid MsgLen MsgTypeId MsgStreamId TimestampAbs字段
//
func Message2Chunks(message []byte, header *base.RtmpHeader, chunkSize int) []byte {
	numOfChunk := len(message) / chunkSize
	if len(message)%chunkSize != 0 {
		numOfChunk++
	}
	if numOfChunk == 0 {
		// 空message也需要一个chunk头
		numOfChunk = 1
	}

	out := make([]byte, len(message)+maxHeaderSize*numOfChunk)
	timestamp := header.TimestampAbs
	extTsFlag := timestamp >= maxTimestampInMessageHeader

	index := writeBasicHeader(out, 0, header.Csid)
	if extTsFlag {
		bele.BePutUint24(out[index:], maxTimestampInMessageHeader)
	} else {
		bele.BePutUint24(out[index:], timestamp)
	}
	index += 3
	bele.BePutUint24(out[index:], uint32(len(message)))
	index += 3
	out[index] = header.MsgTypeId
	index++
	bele.LePutUint32(out[index:], uint32(header.MsgStreamId))
	index += 4
	if extTsFlag {
		bele.BePutUint32(out[index:], timestamp)
		index += 4
	}

	for i := 0; i < numOfChunk; i++ {
		if i != 0 {
			index = writeBasicHeader(out[index:], 3, header.Csid) + index
			if extTsFlag {
				bele.BePutUint32(out[index:], timestamp)
				index += 4
			}
		}
		begin := i * chunkSize
		end := begin + chunkSize
		if end > len(message) {
			end = len(message)
		}
		index += copy(out[index:], message[begin:end])
	}

	return out[:index]
}

// writeBasicHeader 返回写入的字节数
func writeBasicHeader(out []byte, fmt uint8, csid int) int {
	switch {
	case csid >= 2 && csid <= 63:
		out[0] = fmt<<6 | uint8(csid)
		return 1
	case csid >= 64 && csid <= 319:
		out[0] = fmt << 6
		out[1] = uint8(csid - 64)
		return 2
	default:
		out[0] = fmt<<6 | 1
		out[1] = uint8(csid - 64)
		out[2] = uint8((csid - 64) >> 8)
		return 3
	}
}
