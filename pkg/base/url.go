// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// 见单元测试

const (
	DefaultRtmpPort  = 1935
	DefaultRtmpsPort = 443
)

type UrlPathContext struct {
	PathWithRawQuery    string
	Path                string
	PathWithoutLastItem string // 注意，没有前面的'/'，也没有后面的'/'
	LastItemOfPath      string // 注意，没有前面的'/'
	RawQuery            string
}

type UrlContext struct {
	Url string

	Scheme       string
	Username     string
	Password     string
	StdHost      string // host or host:port
	HostWithPort string
	Host         string
	Port         int

	PathWithRawQuery    string
	Path                string
	PathWithoutLastItem string // 注意，没有前面的'/'，也没有后面的'/'
	LastItemOfPath      string // 注意，没有前面的'/'
	RawQuery            string // 参数

	RawUrlWithoutUserInfo string
}

// ---------------------------------------------------------------------------------------------------------------------

// ParseUrl
//
// @param defaultPort: 注意，如果rawUrl中显示指定了端口，则该参数不生效
//                     注意，如果设置为-1，内部依然会对rtmp/rtmps设置官方默认端口
//
func ParseUrl(rawUrl string, defaultPort int) (ctx UrlContext, err error) {
	ctx.Url = rawUrl

	stdUrl, err := url.Parse(rawUrl)
	if err != nil {
		return ctx, fmt.Errorf("%w. url=%s, err=%v", ErrInvalidUrl, rawUrl, err)
	}
	if stdUrl.Scheme == "" {
		return ctx, fmt.Errorf("%w. url=%s", ErrInvalidUrl, rawUrl)
	}
	if defaultPort == -1 {
		switch stdUrl.Scheme {
		case "rtmp":
			defaultPort = DefaultRtmpPort
		case "rtmps":
			defaultPort = DefaultRtmpsPort
		}
	}

	ctx.Scheme = stdUrl.Scheme
	ctx.StdHost = stdUrl.Host
	ctx.Username = stdUrl.User.Username()
	ctx.Password, _ = stdUrl.User.Password()

	h, p, err := net.SplitHostPort(stdUrl.Host)
	if err != nil {
		// url中端口不存在
		ctx.Host = stdUrl.Host
		if defaultPort == -1 {
			ctx.HostWithPort = stdUrl.Host
		} else {
			ctx.HostWithPort = net.JoinHostPort(stdUrl.Host, fmt.Sprintf("%d", defaultPort))
			ctx.Port = defaultPort
		}
	} else {
		// 端口存在
		ctx.Port, err = strconv.Atoi(p)
		if err != nil {
			return ctx, fmt.Errorf("%w. url=%s, err=%v", ErrInvalidUrl, rawUrl, err)
		}
		ctx.Host = h
		ctx.HostWithPort = stdUrl.Host
	}

	pathCtx := parseUrlPath(stdUrl)
	ctx.PathWithRawQuery = pathCtx.PathWithRawQuery
	ctx.Path = pathCtx.Path
	ctx.PathWithoutLastItem = pathCtx.PathWithoutLastItem
	ctx.LastItemOfPath = pathCtx.LastItemOfPath
	ctx.RawQuery = pathCtx.RawQuery

	ctx.RawUrlWithoutUserInfo = fmt.Sprintf("%s://%s%s", ctx.Scheme, ctx.StdHost, ctx.PathWithRawQuery)
	return ctx, nil
}

// ParseRtmpUrl
//
// 推流地址有两种写法：
//   rtmp://host/app/stream 常见的完整写法
//   rtmp://host/app        只包含app，stream name在publish时单独指定
//
func ParseRtmpUrl(rawUrl string) (ctx UrlContext, err error) {
	ctx, err = ParseUrl(rawUrl, -1)
	if err != nil {
		return
	}
	if ctx.Scheme != "rtmp" && ctx.Scheme != "rtmps" || ctx.Host == "" || ctx.Path == "" || ctx.Path == "/" {
		return ctx, fmt.Errorf("%w. url=%s", ErrInvalidUrl, rawUrl)
	}

	// 注意，使用ffmpeg推流时，会把`rtmp://127.0.0.1/test110`中的test110作为appName(streamName则为空)
	// 我们这里也处理一下，和ffmpeg保持一致
	if ctx.PathWithoutLastItem == "" && ctx.LastItemOfPath != "" {
		tmp := ctx.PathWithoutLastItem
		ctx.PathWithoutLastItem = ctx.LastItemOfPath
		ctx.LastItemOfPath = tmp
	}

	// PathWithRawQuery:/vyun?vhost=thirdVhost?token=88F4/lss_7
	//
	// Path:/vyun-----------------------------------------------> /vyun?vhost=thirdVhost?token=88F4/lss_7
	// PathWithoutLastItem:vyun---------------------------------> vyun?vhost=thirdVhost?token=88F4
	// LastItemOfPath:------------------------------------------> lss_7
	// RawQuery:vhost=thirdVhost?token=88F4/lss_7---------------> 空
	//
	if strings.Count(ctx.PathWithRawQuery, "?") > 1 {
		index := strings.LastIndexByte(ctx.PathWithRawQuery, '/')
		ctx.Path = ctx.PathWithRawQuery
		ctx.PathWithoutLastItem = ctx.PathWithRawQuery[1:index]
		ctx.LastItemOfPath = ctx.PathWithRawQuery[index+1:]
		ctx.RawQuery = ""
	}

	return
}

// ----- private -------------------------------------------------------------------------------------------------------

func parseUrlPath(stdUrl *url.URL) (ctx UrlPathContext) {
	ctx.Path = stdUrl.Path

	index := strings.LastIndexByte(ctx.Path, '/')
	if index == -1 {
		ctx.PathWithoutLastItem = ""
		ctx.LastItemOfPath = ""
	} else if index == 0 {
		if ctx.Path == "/" {
			ctx.PathWithoutLastItem = ""
			ctx.LastItemOfPath = ""
		} else {
			ctx.PathWithoutLastItem = ""
			ctx.LastItemOfPath = ctx.Path[1:]
		}
	} else {
		ctx.PathWithoutLastItem = ctx.Path[1:index]
		ctx.LastItemOfPath = ctx.Path[index+1:]
	}

	ctx.RawQuery = stdUrl.RawQuery

	if ctx.RawQuery == "" {
		ctx.PathWithRawQuery = ctx.Path
	} else {
		ctx.PathWithRawQuery = fmt.Sprintf("%s?%s", ctx.Path, ctx.RawQuery)
	}

	return ctx
}
