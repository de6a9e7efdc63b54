// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package broadcast

import (
	"github.com/q191201771/rtmppub/pkg/base"
	"github.com/q191201771/rtmppub/pkg/rtmp"
)

const (
	VideoCodecAvc  = "avc"
	VideoCodecHevc = "hevc"
)

// StreamConfig 推流参数
//
// 创建 Session 时拷贝一份，之后不可修改。需要修改时，关闭 Session 并重新创建。
//
type StreamConfig struct {
	Url        string      `yaml:"url"`
	StreamName string      `yaml:"stream_name"` // 为空时使用url中的stream name
	Video      VideoConfig `yaml:"video"`
	Audio      AudioConfig `yaml:"audio"`
}

type VideoConfig struct {
	Width               int    `yaml:"width"`
	Height              int    `yaml:"height"`
	FrameRate           int    `yaml:"frame_rate"`
	BitrateKbps         int    `yaml:"bitrate_kbps"`
	KeyFrameIntervalSec int    `yaml:"key_frame_interval_sec"`
	Codec               string `yaml:"codec"` // avc | hevc
}

type AudioConfig struct {
	BitrateKbps int  `yaml:"bitrate_kbps"`
	SampleRate  int  `yaml:"sample_rate"`
	Channels    int  `yaml:"channels"`
	Muted       bool `yaml:"muted"`
}

// DefaultStreamConfig 1080p 30帧 1200kbps，2秒一个关键帧，AAC 192kbps 48k 双声道
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Video: VideoConfig{
			Width:               1920,
			Height:              1080,
			FrameRate:           30,
			BitrateKbps:         1200,
			KeyFrameIntervalSec: 2,
			Codec:               VideoCodecAvc,
		},
		Audio: AudioConfig{
			BitrateKbps: 192,
			SampleRate:  48000,
			Channels:    2,
		},
	}
}

var validSampleRates = map[int]struct{}{
	8000: {}, 11025: {}, 16000: {}, 22050: {}, 32000: {}, 44100: {}, 48000: {},
}

// Validate 只做类型和范围的检查
func (c StreamConfig) Validate() error {
	if _, err := base.ParseRtmpUrl(c.Url); err != nil {
		return err
	}

	v := c.Video
	if v.Width <= 0 || v.Width > 7680 {
		return base.NewErrInvalidConfig("video.width", v.Width)
	}
	if v.Height <= 0 || v.Height > 4320 {
		return base.NewErrInvalidConfig("video.height", v.Height)
	}
	if v.FrameRate <= 0 || v.FrameRate > 120 {
		return base.NewErrInvalidConfig("video.frame_rate", v.FrameRate)
	}
	if v.BitrateKbps <= 0 || v.BitrateKbps > 100000 {
		return base.NewErrInvalidConfig("video.bitrate_kbps", v.BitrateKbps)
	}
	if v.KeyFrameIntervalSec <= 0 || v.KeyFrameIntervalSec > 60 {
		return base.NewErrInvalidConfig("video.key_frame_interval_sec", v.KeyFrameIntervalSec)
	}
	if v.Codec != VideoCodecAvc && v.Codec != VideoCodecHevc {
		return base.NewErrInvalidConfig("video.codec", v.Codec)
	}

	a := c.Audio
	if a.BitrateKbps <= 0 || a.BitrateKbps > 512 {
		return base.NewErrInvalidConfig("audio.bitrate_kbps", a.BitrateKbps)
	}
	if _, ok := validSampleRates[a.SampleRate]; !ok {
		return base.NewErrInvalidConfig("audio.sample_rate", a.SampleRate)
	}
	if a.Channels != 1 && a.Channels != 2 {
		return base.NewErrInvalidConfig("audio.channels", a.Channels)
	}
	return nil
}

// MetadataParams 转换为onMetaData的字段
func (c StreamConfig) MetadataParams() rtmp.MetadataParams {
	p := rtmp.MetadataParams{
		Width:         c.Video.Width,
		Height:        c.Video.Height,
		FrameRate:     c.Video.FrameRate,
		VideoDataRate: c.Video.BitrateKbps,
		VideoCodecId:  int(base.RtmpCodecIdAvc),
	}
	if c.Video.Codec == VideoCodecHevc {
		p.VideoCodecId = int(base.RtmpCodecIdHevc)
	}
	if !c.Audio.Muted {
		p.AudioDataRate = c.Audio.BitrateKbps
		p.AudioSampleRate = c.Audio.SampleRate
		p.AudioChannels = c.Audio.Channels
		p.AudioCodecId = int(base.RtmpSoundFormatAac)
	}
	return p
}
