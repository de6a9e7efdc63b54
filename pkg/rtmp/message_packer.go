// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

// message_packer.go
// @pure
// 打包并发送 rtmp 信令

import (
	"bytes"
	"io"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/rtmppub/pkg/base"
)

const (
	peerBandwidthLimitTypeHard    = uint8(0)
	peerBandwidthLimitTypeSoft    = uint8(1)
	peerBandwidthLimitTypeDynamic = uint8(2)
)

// MessagePacker
//
// 注意，非协程安全，调用方自行加锁
//
type MessagePacker struct {
	// 1. 增加一层缓冲，避免 write 一个信令时发生多次系统调用
	// 2. 因为 bytes.Buffer.Write 返回的 error 永远为 nil，所以本文件中所有对 b 的写操作都不判断返回值
	b *bytes.Buffer

	// 本端发送chunk的大小，发送SetChunkSize后更新
	chunkSize int
}

func NewMessagePacker() *MessagePacker {
	return &MessagePacker{
		b:         &bytes.Buffer{},
		chunkSize: defaultChunkSize,
	}
}

func (packer *MessagePacker) ChunkSize() int {
	return packer.chunkSize
}

// ChunkMsg 使用本端的chunk size将message切割成chunk
func (packer *MessagePacker) ChunkMsg(msg base.RtmpMsg) []byte {
	return Message2Chunks(msg.Payload, &msg.Header, packer.chunkSize)
}

// ----- protocol control ----------------------------------------------------------------------------------------------

func (packer *MessagePacker) writeChunkSize(writer io.Writer, val int) error {
	if err := packer.writeProtocolControlMessage(writer, base.RtmpTypeIdSetChunkSize, val); err != nil {
		return err
	}
	packer.chunkSize = val
	return nil
}

func (packer *MessagePacker) writeWinAckSize(writer io.Writer, val int) error {
	return packer.writeProtocolControlMessage(writer, base.RtmpTypeIdWinAckSize, val)
}

func (packer *MessagePacker) writeAcknowledgement(writer io.Writer, seqNum uint32) error {
	return packer.writeProtocolControlMessage(writer, base.RtmpTypeIdAck, int(seqNum))
}

func (packer *MessagePacker) writePeerBandwidth(writer io.Writer, val int, limitType uint8) error {
	_ = bele.WriteBe(packer.b, uint32(val))
	_ = packer.b.WriteByte(limitType)
	return packer.flush(writer, csidProtocolControl, base.RtmpTypeIdBandwidth, Msid0)
}

func (packer *MessagePacker) writeProtocolControlMessage(writer io.Writer, typeId uint8, val int) error {
	_ = bele.WriteBe(packer.b, uint32(val))
	return packer.flush(writer, csidProtocolControl, typeId, Msid0)
}

// ----- user control --------------------------------------------------------------------------------------------------

func (packer *MessagePacker) writePingResponse(writer io.Writer, timestamp uint32) error {
	return packer.writeUserControl(writer, base.RtmpUserControlPingResponse, timestamp)
}

func (packer *MessagePacker) writePingRequest(writer io.Writer, timestamp uint32) error {
	return packer.writeUserControl(writer, base.RtmpUserControlPingRequest, timestamp)
}

func (packer *MessagePacker) writeStreamBegin(writer io.Writer, streamId int) error {
	return packer.writeUserControl(writer, base.RtmpUserControlStreamBegin, uint32(streamId))
}

func (packer *MessagePacker) writeUserControl(writer io.Writer, eventType uint8, val uint32) error {
	_ = bele.WriteBe(packer.b, uint16(eventType))
	_ = bele.WriteBe(packer.b, val)
	return packer.flush(writer, csidProtocolControl, base.RtmpTypeIdUserControl, Msid0)
}

// ----- command, client side ------------------------------------------------------------------------------------------

func (packer *MessagePacker) writeConnect(writer io.Writer, appName, tcUrl string) error {
	_ = Amf0.WriteString(packer.b, "connect")
	_ = Amf0.WriteNumber(packer.b, float64(tidClientConnect))

	objs := ObjectPairArray{
		{Key: "app", Value: appName},
		{Key: "type", Value: "nonprivate"},
		{Key: "flashVer", Value: base.RtmpConnectFlashVer},
		{Key: "tcUrl", Value: tcUrl},
	}
	_ = Amf0.WriteObject(packer.b, objs)
	return packer.flush(writer, csidOverConnection, base.RtmpTypeIdCommandMessageAmf0, Msid0)
}

func (packer *MessagePacker) writeCreateStream(writer io.Writer) error {
	_ = Amf0.WriteString(packer.b, "createStream")
	_ = Amf0.WriteNumber(packer.b, float64(tidClientCreateStream))
	_ = Amf0.WriteNull(packer.b)
	return packer.flush(writer, csidOverConnection, base.RtmpTypeIdCommandMessageAmf0, Msid0)
}

// writeReleaseStream releaseStream和FCPublish以及FCUnpublish都是非标准信令，部分服务端依赖它们
func (packer *MessagePacker) writeReleaseStream(writer io.Writer, streamName string) error {
	return packer.writeStreamNameCommand(writer, "releaseStream", streamName)
}

func (packer *MessagePacker) writeFcPublish(writer io.Writer, streamName string) error {
	return packer.writeStreamNameCommand(writer, "FCPublish", streamName)
}

func (packer *MessagePacker) writeFcUnpublish(writer io.Writer, streamName string) error {
	return packer.writeStreamNameCommand(writer, "FCUnpublish", streamName)
}

func (packer *MessagePacker) writeStreamNameCommand(writer io.Writer, cmd string, streamName string) error {
	_ = Amf0.WriteString(packer.b, cmd)
	_ = Amf0.WriteNumber(packer.b, float64(tidClientReleaseOrFc))
	_ = Amf0.WriteNull(packer.b)
	_ = Amf0.WriteString(packer.b, streamName)
	return packer.flush(writer, csidOverConnection, base.RtmpTypeIdCommandMessageAmf0, Msid0)
}

func (packer *MessagePacker) writePublish(writer io.Writer, streamName string, streamId int) error {
	_ = Amf0.WriteString(packer.b, "publish")
	_ = Amf0.WriteNumber(packer.b, float64(tidClientPublish))
	_ = Amf0.WriteNull(packer.b)
	_ = Amf0.WriteString(packer.b, streamName)
	_ = Amf0.WriteString(packer.b, "live")
	return packer.flush(writer, csidOverStream, base.RtmpTypeIdCommandMessageAmf0, streamId)
}

func (packer *MessagePacker) writeDeleteStream(writer io.Writer, streamId int) error {
	_ = Amf0.WriteString(packer.b, "deleteStream")
	_ = Amf0.WriteNumber(packer.b, float64(tidClientUnpublish))
	_ = Amf0.WriteNull(packer.b)
	_ = Amf0.WriteNumber(packer.b, float64(streamId))
	return packer.flush(writer, csidOverConnection, base.RtmpTypeIdCommandMessageAmf0, Msid0)
}

// ----- command, server side ------------------------------------------------------------------------------------------

func (packer *MessagePacker) writeConnectResult(writer io.Writer, tid int) error {
	_ = Amf0.WriteString(packer.b, "_result")
	_ = Amf0.WriteNumber(packer.b, float64(tid))
	objs := ObjectPairArray{
		{Key: "fmsVer", Value: "FMS/3,0,1,123"},
		{Key: "capabilities", Value: 31},
	}
	_ = Amf0.WriteObject(packer.b, objs)
	objs = ObjectPairArray{
		{Key: "level", Value: "status"},
		{Key: "code", Value: "NetConnection.Connect.Success"},
		{Key: "description", Value: "Connection succeeded."},
		{Key: "objectEncoding", Value: 0},
	}
	_ = Amf0.WriteObject(packer.b, objs)
	return packer.flush(writer, csidOverConnection, base.RtmpTypeIdCommandMessageAmf0, Msid0)
}

func (packer *MessagePacker) writeCreateStreamResult(writer io.Writer, tid int, streamId int) error {
	_ = Amf0.WriteString(packer.b, "_result")
	_ = Amf0.WriteNumber(packer.b, float64(tid))
	_ = Amf0.WriteNull(packer.b)
	_ = Amf0.WriteNumber(packer.b, float64(streamId))
	return packer.flush(writer, csidOverConnection, base.RtmpTypeIdCommandMessageAmf0, Msid0)
}

// writeError 例如connect被拒绝，或者鉴权失败
func (packer *MessagePacker) writeError(writer io.Writer, tid int, code string, description string) error {
	_ = Amf0.WriteString(packer.b, "_error")
	_ = Amf0.WriteNumber(packer.b, float64(tid))
	_ = Amf0.WriteNull(packer.b)
	objs := ObjectPairArray{
		{Key: "level", Value: "error"},
		{Key: "code", Value: code},
		{Key: "description", Value: description},
	}
	_ = Amf0.WriteObject(packer.b, objs)
	return packer.flush(writer, csidOverConnection, base.RtmpTypeIdCommandMessageAmf0, Msid0)
}

func (packer *MessagePacker) writeOnStatus(writer io.Writer, streamId int, level, code, description string) error {
	_ = Amf0.WriteString(packer.b, "onStatus")
	_ = Amf0.WriteNumber(packer.b, 0)
	_ = Amf0.WriteNull(packer.b)
	objs := ObjectPairArray{
		{Key: "level", Value: level},
		{Key: "code", Value: code},
		{Key: "description", Value: description},
	}
	_ = Amf0.WriteObject(packer.b, objs)
	return packer.flush(writer, csidOverStream, base.RtmpTypeIdCommandMessageAmf0, streamId)
}

func (packer *MessagePacker) writeOnStatusPublish(writer io.Writer, streamId int) error {
	return packer.writeOnStatus(writer, streamId, "status", "NetStream.Publish.Start", "Start publishing")
}

// ---------------------------------------------------------------------------------------------------------------------

// flush 将缓冲中的message body切割成chunk后写出，并清空缓冲
func (packer *MessagePacker) flush(writer io.Writer, csid int, typeId uint8, streamId int) error {
	h := base.RtmpHeader{
		Csid:        csid,
		MsgLen:      uint32(packer.b.Len()),
		MsgTypeId:   typeId,
		MsgStreamId: streamId,
	}
	chunks := Message2Chunks(packer.b.Bytes(), &h, packer.chunkSize)
	packer.b.Reset()
	_, err := writer.Write(chunks)
	return err
}
