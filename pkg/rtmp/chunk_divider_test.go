// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/rtmppub/pkg/base"
)

func TestMessage2Chunks(t *testing.T) {
	chunkSize := 4096
	capa := chunkSize * 10
	goldBuf := make([]byte, capa)
	for i := 0; i < capa; i++ {
		goldBuf[i] = byte(i % 256)
	}

	var packFn = func(testLen uint32) []byte {
		h := base.RtmpHeader{
			Csid:         CsidVideo,
			MsgLen:       testLen,
			MsgTypeId:    base.RtmpTypeIdVideo,
			MsgStreamId:  Msid1,
			TimestampAbs: 123,
		}
		return Message2Chunks(goldBuf[:testLen], &h, chunkSize)
	}

	// 07    00 00 7b   00 00 01  09      01 00 00 00  00
	// csid  timestamp  len       typeid  streamid     v

	goldHeaderHex := []byte{7, 0, 0, 0x7b, 0, 0, 1, 9, 1, 0, 0, 0}
	for _, testLen := range []int{1, 2, 4095, 4096} {
		m := packFn(uint32(testLen))
		bele.BePutUint24(goldHeaderHex[4:], uint32(testLen))
		assert.Equal(t, append(append([]byte{}, goldHeaderHex...), goldBuf[:testLen]...), m)
	}

	goldHeaderHex3 := []byte{0xc7} // c fmt=3, 7 csid
	for _, testLen := range []int{4097, 4098, 8191, 8192} {
		m := packFn(uint32(testLen))
		bele.BePutUint24(goldHeaderHex[4:], uint32(testLen))
		exp := append(append([]byte{}, goldHeaderHex...), goldBuf[:4096]...)
		exp = append(exp, goldHeaderHex3...)
		exp = append(exp, goldBuf[4096:testLen]...)
		assert.Equal(t, exp, m)
	}

	for _, testLen := range []int{8193, 8194, 4096 * 3} {
		m := packFn(uint32(testLen))
		bele.BePutUint24(goldHeaderHex[4:], uint32(testLen))
		exp := append(append([]byte{}, goldHeaderHex...), goldBuf[:4096]...)
		exp = append(exp, goldHeaderHex3...)
		exp = append(exp, goldBuf[4096:8192]...)
		exp = append(exp, goldHeaderHex3...)
		exp = append(exp, goldBuf[8192:testLen]...)
		assert.Equal(t, exp, m)
	}
}

func TestMessage2ChunksExtTimestamp(t *testing.T) {
	h := base.RtmpHeader{
		Csid:         CsidAudio,
		MsgTypeId:    base.RtmpTypeIdAudio,
		MsgStreamId:  Msid1,
		TimestampAbs: 0x01020304,
	}
	payload := []byte{1, 2, 3}
	m := Message2Chunks(payload, &h, 2)
	exp := []byte{
		6, 0xff, 0xff, 0xff, 0, 0, 3, 8, 1, 0, 0, 0, 1, 2, 3, 4, 1, 2,
		0xc6, 1, 2, 3, 4, 3,
	}
	assert.Equal(t, exp, m)
}

func TestMessage2ChunksCsid(t *testing.T) {
	h := base.RtmpHeader{
		Csid:      64 + 10,
		MsgTypeId: base.RtmpTypeIdMetadata,
	}
	m := Message2Chunks([]byte{1}, &h, 128)
	assert.Equal(t, []byte{0, 10}, m[:2])

	h.Csid = 64 + 256 + 1
	m = Message2Chunks([]byte{1}, &h, 128)
	assert.Equal(t, []byte{1, 1, 1}, m[:3])

	// 空message
	h.Csid = CsidAmf
	m = Message2Chunks(nil, &h, 128)
	assert.Equal(t, 12, len(m))
}
