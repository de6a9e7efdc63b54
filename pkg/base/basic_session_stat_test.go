// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"strings"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/naza/pkg/connection"
)

type fakeStatable struct {
	stat connection.Stat
}

func (f *fakeStatable) GetStat() connection.Stat {
	return f.stat
}

func TestBasicSessionStat(t *testing.T) {
	uk := GenUkRtmpClientConnection()
	assert.Equal(t, true, strings.HasPrefix(uk, UkPreRtmpClientConnection))

	s := NewBasicSessionStat(uk, ProtocolRtmp)
	assert.Equal(t, uk, s.UniqueKey())

	conn := &fakeStatable{}
	conn.stat.WroteBytesSum = 1024 * 10
	conn.stat.ReadBytesSum = 100
	s.UpdateStatWitchConn(conn, 1)
	stat := s.GetStatWithConn(conn)
	assert.Equal(t, 80, stat.WriteBitrate)
	assert.Equal(t, uint64(100), stat.ReadBytesSum)
	assert.Equal(t, uint64(1024*10), stat.WroteBytesSum)
	assert.Equal(t, ProtocolRtmp, stat.Protocol)

	conn.stat.WroteBytesSum += 1024 * 20
	s.UpdateStatWitchConn(conn, 2)
	assert.Equal(t, 80, s.GetStatWithConn(conn).WriteBitrate)

	// 重连后计数回退
	conn.stat.WroteBytesSum = 1024
	s.UpdateStatWitchConn(conn, 1)
	assert.Equal(t, 8, s.GetStatWithConn(conn).WriteBitrate)

	s.SetRemoteAddr("127.0.0.1:1935")
	assert.Equal(t, "127.0.0.1:1935", s.GetStatWithConn(nil).RemoteAddr)
}
