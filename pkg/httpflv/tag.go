// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package httpflv

import (
	"io"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/rtmppub/pkg/base"
)

type TagHeader struct {
	Type      uint8  // type
	DataSize  uint32 // body大小，不包含 header 和 prev tag size 字段
	Timestamp uint32 // 绝对时间戳，单位毫秒
	StreamId  uint32 // always 0
}

type Tag struct {
	Header TagHeader
	Raw    []byte // 结构为 (11字节的 tag header) + (body) + (4字节的 prev tag size)
}

// Payload 只包含body部分
func (tag *Tag) Payload() []byte {
	return tag.Raw[TagHeaderSize : len(tag.Raw)-prevTagSizeFieldSize]
}

func (tag *Tag) IsMetadata() bool {
	return tag.Header.Type == TagTypeMetadata
}

func (tag *Tag) IsAvcKeySeqHeader() bool {
	return tag.isVideo(base.RtmpAvcKeyFrame, base.RtmpAvcPacketTypeSeqHeader)
}

func (tag *Tag) IsHevcKeySeqHeader() bool {
	return tag.isVideo(base.RtmpHevcKeyFrame, base.RtmpHevcPacketTypeSeqHeader)
}

// IsVideoKeySeqHeader AVC或HEVC的seq header
func (tag *Tag) IsVideoKeySeqHeader() bool {
	return tag.IsAvcKeySeqHeader() || tag.IsHevcKeySeqHeader()
}

func (tag *Tag) IsAvcKeyNalu() bool {
	return tag.isVideo(base.RtmpAvcKeyFrame, base.RtmpAvcPacketTypeNalu)
}

func (tag *Tag) IsHevcKeyNalu() bool {
	return tag.isVideo(base.RtmpHevcKeyFrame, base.RtmpHevcPacketTypeNalu)
}

// IsVideoKeyNalu AVC或HEVC的关键帧
func (tag *Tag) IsVideoKeyNalu() bool {
	return tag.IsAvcKeyNalu() || tag.IsHevcKeyNalu()
}

func (tag *Tag) IsAacSeqHeader() bool {
	payload := tag.Payload()
	return tag.Header.Type == TagTypeAudio && len(payload) > 1 &&
		payload[0]>>4 == base.RtmpSoundFormatAac && payload[1] == base.RtmpAacPacketTypeSeqHeader
}

// ModTagTimestamp 同时修改 Header 和 Raw 中的时间戳
func (tag *Tag) ModTagTimestamp(timestamp uint32) {
	tag.Header.Timestamp = timestamp

	bele.BePutUint24(tag.Raw[4:], timestamp&0xffffff)
	tag.Raw[7] = byte(timestamp >> 24)
}

// ToAvPacket 音频和视频tag转换为 base.AvPacket ，其他类型的tag（比如metadata）返回false
//
// 注意，Payload没有拷贝，和 Raw 共享内存
//
func (tag *Tag) ToAvPacket() (pkt base.AvPacket, ok bool) {
	switch tag.Header.Type {
	case TagTypeAudio:
		pkt.Kind = base.AvKindAudio
	case TagTypeVideo:
		pkt.Kind = base.AvKindVideo
	default:
		return pkt, false
	}
	pkt.Timestamp = tag.Header.Timestamp
	pkt.Payload = tag.Payload()
	return pkt, len(pkt.Payload) != 0
}

func (tag *Tag) Clone() (out Tag) {
	out.Header = tag.Header
	out.Raw = append(out.Raw, tag.Raw...)
	return
}

// PackHttpflvTag 打包一个序列化后的 tag 二进制buffer，包含 tag header，body，prev tag size
func PackHttpflvTag(t uint8, timestamp uint32, in []byte) []byte {
	out := make([]byte, TagHeaderSize+len(in)+prevTagSizeFieldSize)
	out[0] = t
	bele.BePutUint24(out[1:], uint32(len(in)))
	bele.BePutUint24(out[4:], timestamp&0xFFFFFF)
	out[7] = uint8(timestamp >> 24)
	out[8] = 0
	out[9] = 0
	out[10] = 0
	copy(out[11:], in)
	bele.BePutUint32(out[TagHeaderSize+len(in):], uint32(TagHeaderSize+len(in)))
	return out
}

// AvPacket2Tag 打包成可以直接写入FLV文件的tag
func AvPacket2Tag(pkt base.AvPacket) Tag {
	raw := PackHttpflvTag(pkt.RtmpTypeId(), pkt.Timestamp, pkt.Payload)
	return Tag{
		Header: parseTagHeader(raw),
		Raw:    raw,
	}
}

// ---------------------------------------------------------------------------------------------------------------------

func (tag *Tag) isVideo(frame uint8, packetType uint8) bool {
	payload := tag.Payload()
	return tag.Header.Type == TagTypeVideo && len(payload) > 1 && payload[0] == frame && payload[1] == packetType
}

func parseTagHeader(rawHeader []byte) TagHeader {
	var h TagHeader
	h.Type = rawHeader[0]
	h.DataSize = bele.BeUint24(rawHeader[1:])
	h.Timestamp = (uint32(rawHeader[7]) << 24) + bele.BeUint24(rawHeader[4:])
	h.StreamId = bele.BeUint24(rawHeader[8:])
	return h
}

func readTag(rd io.Reader) (tag Tag, err error) {
	rawHeader := make([]byte, TagHeaderSize)
	if _, err = io.ReadFull(rd, rawHeader); err != nil {
		return
	}
	header := parseTagHeader(rawHeader)

	needed := int(header.DataSize) + prevTagSizeFieldSize
	tag.Header = header
	tag.Raw = make([]byte, TagHeaderSize+needed)
	copy(tag.Raw, rawHeader)

	if _, err = io.ReadFull(rd, tag.Raw[TagHeaderSize:]); err != nil {
		return
	}

	return
}
