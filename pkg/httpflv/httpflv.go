// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package httpflv

import "github.com/q191201771/rtmppub/pkg/base"

// 本包只处理FLV文件格式本身：读取、写入，以及按时间戳节奏回放tag
// 回放的数据以 base.AvPacket 的形式交给 rtmp.Stream 推出去

const (
	TagTypeMetadata = base.RtmpTypeIdMetadata
	TagTypeVideo    = base.RtmpTypeIdVideo
	TagTypeAudio    = base.RtmpTypeIdAudio
)

const (
	TagHeaderSize int = 11

	flvHeaderSize        = 13 // 9字节的header，加上4字节的第一个prev tag size
	prevTagSizeFieldSize = 4
)

// FlvHeader audio和video都有，版本1
var FlvHeader = []byte{0x46, 0x4c, 0x56, 0x01, 0x05, 0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x00}
