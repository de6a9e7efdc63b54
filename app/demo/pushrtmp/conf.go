// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"os"

	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/q191201771/rtmppub/pkg/broadcast"
	"gopkg.in/yaml.v3"
)

// Conf 配置文件，没有配置的字段使用默认值
type Conf struct {
	Stream broadcast.StreamConfig `yaml:"stream"`

	ConnectTimeoutMs     int  `yaml:"connect_timeout_ms"`
	ReconnectGraceMs     int  `yaml:"reconnect_grace_ms"`
	ReconnectIntervalMs  int  `yaml:"reconnect_interval_ms"`
	MaxReconnectAttempts int  `yaml:"max_reconnect_attempts"`
	QueueSize            int  `yaml:"queue_size"`
	HandshakeComplexFlag bool `yaml:"handshake_complex_flag"`
}

// loadConf 文件名为空时返回默认配置
func loadConf(filename string) (*Conf, error) {
	conf := &Conf{
		Stream: broadcast.DefaultStreamConfig(),
	}
	if filename == "" {
		return conf, nil
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, nazaerrors.Wrap(err)
	}
	if err = yaml.Unmarshal(content, conf); err != nil {
		return nil, nazaerrors.Wrap(err)
	}
	return conf, nil
}

func (c *Conf) ModSessionOption(option *broadcast.SessionOption) {
	if c.ConnectTimeoutMs > 0 {
		option.ConnectTimeoutMs = c.ConnectTimeoutMs
	}
	if c.ReconnectGraceMs > 0 {
		option.ReconnectGraceMs = c.ReconnectGraceMs
	}
	if c.ReconnectIntervalMs > 0 {
		option.ReconnectIntervalMs = c.ReconnectIntervalMs
	}
	if c.MaxReconnectAttempts > 0 {
		option.MaxReconnectAttempts = c.MaxReconnectAttempts
	}
	if c.QueueSize > 0 {
		option.QueueSize = c.QueueSize
	}
	option.HandshakeComplexFlag = c.HandshakeComplexFlag
}
