// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"bytes"

	"github.com/q191201771/rtmppub/pkg/base"
)

const (
	sdfName        = "@setDataFrame"
	onMetaDataName = "onMetaData"
)

// MetadataParams
//
// 值为0的字段不写入metadata
//
type MetadataParams struct {
	Width         int
	Height        int
	FrameRate     int
	VideoDataRate int // kbit/s
	VideoCodecId  int // H264 7, H265 12

	AudioDataRate   int // kbit/s
	AudioSampleRate int
	AudioChannels   int // 2为立体声
	AudioCodecId    int // AAC 10
}

// BuildMetadata
//
// spec-video_file_format_spec_v10.pdf
// onMetaData
// - width           DOUBLE
// - height          DOUBLE
// - videodatarate   DOUBLE
// - framerate       DOUBLE
// - videocodecid    DOUBLE
// - audiodatarate   DOUBLE
// - audiosamplerate DOUBLE
// - stereo          BOOL
// - audiocodecid    DOUBLE
//
// @return 不包含@setDataFrame，返回的内存块为新申请的独立内存块
//
func BuildMetadata(params MetadataParams) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := Amf0.WriteString(buf, onMetaDataName); err != nil {
		return nil, err
	}

	var opa ObjectPairArray
	appendIf := func(key string, v int) {
		if v != 0 {
			opa = append(opa, ObjectPair{Key: key, Value: v})
		}
	}
	appendIf("width", params.Width)
	appendIf("height", params.Height)
	appendIf("videodatarate", params.VideoDataRate)
	appendIf("framerate", params.FrameRate)
	appendIf("videocodecid", params.VideoCodecId)
	appendIf("audiodatarate", params.AudioDataRate)
	appendIf("audiosamplerate", params.AudioSampleRate)
	if params.AudioChannels != 0 {
		opa = append(opa, ObjectPair{Key: "stereo", Value: params.AudioChannels == 2})
	}
	appendIf("audiocodecid", params.AudioCodecId)
	opa = append(opa, ObjectPair{Key: "encoder", Value: base.RtmpBuildMetadataEncoder})

	if err := Amf0.WriteEcmaArray(buf, opa); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseMetadata 兼容带@setDataFrame和不带的两种格式
func ParseMetadata(b []byte) (ObjectPairArray, error) {
	pos := 0
	v, l, err := Amf0.ReadString(b[pos:])
	if err != nil {
		return nil, err
	}
	pos += l
	if v == sdfName {
		_, l, err = Amf0.ReadString(b[pos:])
		if err != nil {
			return nil, err
		}
		pos += l
	}
	opa, _, err := Amf0.ReadObjectOrArray(b[pos:])
	return opa, err
}

// MetadataEnsureWithSdf 推流时，metadata需要以@setDataFrame开头
func MetadataEnsureWithSdf(b []byte) ([]byte, error) {
	v, _, err := Amf0.ReadString(b)
	if err != nil {
		return nil, err
	}
	if v == sdfName {
		return b, nil
	}
	buf := &bytes.Buffer{}
	_ = Amf0.WriteString(buf, sdfName)
	_, _ = buf.Write(b)
	return buf.Bytes(), nil
}

func MetadataEnsureWithoutSdf(b []byte) ([]byte, error) {
	v, l, err := Amf0.ReadString(b)
	if err != nil {
		return nil, err
	}
	if v == sdfName {
		return b[l:], nil
	}
	return b, nil
}
