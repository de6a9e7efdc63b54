// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

// 一些更专业的配置项，暂时只在该源码文件中配置，不提供外部配置接口
var (
	readBufSize   = 4096 // connection 读缓冲的大小
	wChanSize     = 1024 // connection 发送数据时，channel 的大小
	peerBandwidth = 5000000
)

const (
	CsidAmf   = 5
	CsidAudio = 6
	CsidVideo = 7

	csidProtocolControl = 2
	csidOverConnection  = 3
	csidOverStream      = 5
)

const (
	tidClientConnect      = 1
	tidClientCreateStream = 2
	tidClientPublish      = 3
	tidClientUnpublish    = 4
	tidClientReleaseOrFc  = 0
)

// basic header 3 | message header 11 | extended ts 4
const maxHeaderSize = 18

// rtmp头中3字节时间戳的最大值
const maxTimestampInMessageHeader uint32 = 0xFFFFFF

const defaultChunkSize = 128 // 未收到对端设置chunk size时的默认值

// 对端发送的单个message的最大长度，超过则认为对端非法
const maxMsgLen = 8 * 1024 * 1024

const (
	Msid0 = 0 // 所有除 publish、play、onStatus 之外的信令
	Msid1 = 1 // publish、play、onStatus 以及 音视频数据
)
