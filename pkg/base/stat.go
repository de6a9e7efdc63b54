// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

const (
	ProtocolRtmp  = "RTMP"
	ProtocolRtmps = "RTMPS"
)

// StatSession 单个推流会话的统计信息
type StatSession struct {
	SessionId     string `json:"session_id"`
	Protocol      string `json:"protocol"`
	StartTime     string `json:"start_time"`
	RemoteAddr    string `json:"remote_addr"`
	ReadBytesSum  uint64 `json:"read_bytes_sum"`
	WroteBytesSum uint64 `json:"wrote_bytes_sum"`
	WriteBitrate  int    `json:"write_bitrate"` // kbit/s，由UpdateStat计算

	SentPackets    uint64 `json:"sent_packets"`
	DroppedPackets uint64 `json:"dropped_packets"`
}
