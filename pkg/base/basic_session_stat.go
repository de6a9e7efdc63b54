// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"github.com/q191201771/naza/pkg/connection"
)

type IStatable interface {
	GetStat() connection.Stat
}

// BasicSessionStat
//
// 维护 StatSession 的静态信息，并通过外部的 connection.Connection 计算带宽
//
type BasicSessionStat struct {
	stat StatSession

	prevConnStat connection.Stat
}

func NewBasicSessionStat(uniqueKey string, protocol string) BasicSessionStat {
	var s BasicSessionStat
	s.stat.SessionId = uniqueKey
	s.stat.Protocol = protocol
	s.stat.StartTime = ReadableNowTime()
	return s
}

func (s *BasicSessionStat) SetRemoteAddr(addr string) {
	s.stat.RemoteAddr = addr
}

func (s *BasicSessionStat) SetProtocol(protocol string) {
	s.stat.Protocol = protocol
}

// UpdateStatWitchConn
//
// @param conn: 为nil时只重置统计基准
//
func (s *BasicSessionStat) UpdateStatWitchConn(conn IStatable, intervalSec uint32) {
	if conn == nil || intervalSec == 0 {
		s.prevConnStat = connection.Stat{}
		return
	}
	currStat := conn.GetStat()
	if currStat.WroteBytesSum < s.prevConnStat.WroteBytesSum {
		// 重连后底层连接是新的，计数从0开始
		s.prevConnStat = connection.Stat{}
	}
	wDiff := currStat.WroteBytesSum - s.prevConnStat.WroteBytesSum
	s.stat.WriteBitrate = int(wDiff * 8 / 1024 / uint64(intervalSec))
	s.prevConnStat = currStat
}

func (s *BasicSessionStat) GetStatWithConn(conn IStatable) StatSession {
	if conn != nil {
		connStat := conn.GetStat()
		s.stat.ReadBytesSum = connStat.ReadBytesSum
		s.stat.WroteBytesSum = connStat.WroteBytesSum
	}
	return s.stat
}

func (s *BasicSessionStat) UniqueKey() string {
	return s.stat.SessionId
}
