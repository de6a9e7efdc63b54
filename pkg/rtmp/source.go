// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import "github.com/q191201771/rtmppub/pkg/base"

type OnAvPacket func(pkt base.AvPacket)

// Source 音频或者视频的数据源，比如采集编码模块，或者文件
//
// Start 之后，Source 在自己的协程中回调 OnAvPacket ，Stop 之后不应再回调
//
type Source interface {
	Start(onAvPacket OnAvPacket) error
	Stop() error
}
