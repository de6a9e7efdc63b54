// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

type AvKind int

const (
	AvKindUnknown AvKind = 0
	AvKindAudio   AvKind = 1
	AvKindVideo   AvKind = 2
)

func (k AvKind) ReadableString() string {
	switch k {
	case AvKindAudio:
		return "audio"
	case AvKindVideo:
		return "video"
	}
	return "unknown"
}

// AvPacket 采集编码后的一帧数据
//
// Payload 为FLV tag body的格式（也即RTMP audio/video message的body）：
//   视频 FrameType|CodecId AVCPacketType CompositionTime Data
//   音频 SoundFormat|... AACPacketType Data
//
type AvPacket struct {
	Kind      AvKind
	Timestamp uint32 // dts, 单位毫秒
	Payload   []byte
}

func (pkt AvPacket) RtmpTypeId() uint8 {
	switch pkt.Kind {
	case AvKindAudio:
		return RtmpTypeIdAudio
	case AvKindVideo:
		return RtmpTypeIdVideo
	}
	return 0
}

// ToRtmpMsg 注意，Payload没有拷贝，Csid与MsgStreamId由发送方填写
func (pkt AvPacket) ToRtmpMsg() RtmpMsg {
	return RtmpMsg{
		Header: RtmpHeader{
			MsgLen:       uint32(len(pkt.Payload)),
			MsgTypeId:    pkt.RtmpTypeId(),
			TimestampAbs: pkt.Timestamp,
		},
		Payload: pkt.Payload,
	}
}
