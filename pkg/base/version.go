// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "strings"

// Version 由外部脚本修改维护
const Version = "v0.3.0"

var (
	LibraryName = "rtmppub"
	GithubRepo  = "github.com/q191201771/rtmppub"
	GithubSite  = "https://github.com/q191201771/rtmppub"

	// FullInfo e.g. rtmppub v0.3.0 (github.com/q191201771/rtmppub)
	FullInfo = LibraryName + " " + Version + " (" + GithubRepo + ")"

	// VersionDot e.g. 0.3.0
	VersionDot string
)

var (
	// RtmpHandshakeWaterMark 植入rtmp握手随机字符串中
	RtmpHandshakeWaterMark string

	// RtmpConnectFlashVer 填入connect信令的flashVer字段
	// e.g. FMLE/3.0 (compatible; rtmppub0.3.0)
	RtmpConnectFlashVer string

	// RtmpBuildMetadataEncoder 填入onMetaData的encoder字段
	// e.g. rtmppub0.3.0
	RtmpBuildMetadataEncoder string
)

func init() {
	VersionDot = strings.TrimPrefix(Version, "v")

	RtmpHandshakeWaterMark = FullInfo
	RtmpConnectFlashVer = "FMLE/3.0 (compatible; " + LibraryName + VersionDot + ")"
	RtmpBuildMetadataEncoder = LibraryName + VersionDot
}
