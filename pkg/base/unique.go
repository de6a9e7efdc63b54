// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "github.com/q191201771/naza/pkg/unique"

const (
	UkPreRtmpClientConnection = "RTMPPUB"
	UkPreBroadcastSession     = "BROADCAST"
	UkPreFlvTagSource         = "FLVSRC"
)

func GenUkRtmpClientConnection() string {
	return siUkRtmpClientConnection.GenUniqueKey()
}

func GenUkBroadcastSession() string {
	return siUkBroadcastSession.GenUniqueKey()
}

func GenUkFlvTagSource() string {
	return siUkFlvTagSource.GenUniqueKey()
}

var (
	siUkRtmpClientConnection *unique.SingleGenerator
	siUkBroadcastSession     *unique.SingleGenerator
	siUkFlvTagSource         *unique.SingleGenerator
)

func init() {
	siUkRtmpClientConnection = unique.NewSingleGenerator(UkPreRtmpClientConnection)
	siUkBroadcastSession = unique.NewSingleGenerator(UkPreBroadcastSession)
	siUkFlvTagSource = unique.NewSingleGenerator(UkPreFlvTagSource)
}
