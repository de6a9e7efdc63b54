// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package httpflv

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/rtmppub/pkg/base"
)

var (
	avcSeqHeader = []byte{0x17, 0x00, 0x00, 0x00, 0x00, 0x01, 0x64}
	avcKeyFrame  = []byte{0x17, 0x01, 0x00, 0x00, 0x00, 0xAA}
	avcInter     = []byte{0x27, 0x01, 0x00, 0x00, 0x00, 0xBB}
	hevcKeyFrame = []byte{0x1C, 0x01, 0x00, 0x00, 0x00, 0xCC}
	aacSeqHeader = []byte{0xAF, 0x00, 0x12, 0x10}
	aacRaw       = []byte{0xAF, 0x01, 0xDD}
	metadataBody = []byte{0x02, 0x00, 0x0A, 'o', 'n', 'M', 'e', 't', 'a', 'D', 'a', 't', 'a'}
)

func newTag(t uint8, ts uint32, body []byte) Tag {
	raw := PackHttpflvTag(t, ts, body)
	return Tag{Header: parseTagHeader(raw), Raw: raw}
}

func TestPackHttpflvTag(t *testing.T) {
	raw := PackHttpflvTag(TagTypeVideo, 0x01020304, avcKeyFrame)
	assert.Equal(t, TagHeaderSize+len(avcKeyFrame)+prevTagSizeFieldSize, len(raw))
	assert.Equal(t, []byte{TagTypeVideo, 0x00, 0x00, 0x06, 0x02, 0x03, 0x04, 0x01, 0x00, 0x00, 0x00}, raw[:TagHeaderSize])
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x11}, raw[len(raw)-prevTagSizeFieldSize:])

	tag, err := readTag(bytes.NewReader(raw))
	assert.Equal(t, nil, err)
	assert.Equal(t, TagTypeVideo, tag.Header.Type)
	assert.Equal(t, uint32(len(avcKeyFrame)), tag.Header.DataSize)
	assert.Equal(t, uint32(0x01020304), tag.Header.Timestamp)
	assert.Equal(t, avcKeyFrame, tag.Payload())
	assert.Equal(t, raw, tag.Raw)
}

func TestReadTagShort(t *testing.T) {
	raw := PackHttpflvTag(TagTypeAudio, 10, aacRaw)

	_, err := readTag(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)

	_, err = readTag(bytes.NewReader(raw[:5]))
	assert.Equal(t, io.ErrUnexpectedEOF, err)

	_, err = readTag(bytes.NewReader(raw[:len(raw)-1]))
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestTagPredicate(t *testing.T) {
	golden := []struct {
		tag            Tag
		metadata       bool
		videoSeqHeader bool
		videoKeyNalu   bool
		aacSeqHeader   bool
	}{
		{newTag(TagTypeMetadata, 0, metadataBody), true, false, false, false},
		{newTag(TagTypeVideo, 0, avcSeqHeader), false, true, false, false},
		{newTag(TagTypeVideo, 0, avcKeyFrame), false, false, true, false},
		{newTag(TagTypeVideo, 0, hevcKeyFrame), false, false, true, false},
		{newTag(TagTypeVideo, 0, avcInter), false, false, false, false},
		{newTag(TagTypeAudio, 0, aacSeqHeader), false, false, false, true},
		{newTag(TagTypeAudio, 0, aacRaw), false, false, false, false},
		{newTag(TagTypeVideo, 0, nil), false, false, false, false},
	}
	for _, item := range golden {
		assert.Equal(t, item.metadata, item.tag.IsMetadata())
		assert.Equal(t, item.videoSeqHeader, item.tag.IsVideoKeySeqHeader())
		assert.Equal(t, item.videoKeyNalu, item.tag.IsVideoKeyNalu())
		assert.Equal(t, item.aacSeqHeader, item.tag.IsAacSeqHeader())
	}
}

func TestModTagTimestamp(t *testing.T) {
	tag := newTag(TagTypeAudio, 1, aacRaw)
	tag.ModTagTimestamp(0xAABBCCDD)
	assert.Equal(t, uint32(0xAABBCCDD), tag.Header.Timestamp)
	assert.Equal(t, uint32(0xAABBCCDD), parseTagHeader(tag.Raw).Timestamp)

	clone := tag.Clone()
	clone.Raw[TagHeaderSize] = 0
	assert.Equal(t, aacRaw[0], tag.Raw[TagHeaderSize])
}

func TestToAvPacket(t *testing.T) {
	tag := newTag(TagTypeVideo, 40, avcKeyFrame)
	pkt, ok := tag.ToAvPacket()
	assert.Equal(t, true, ok)
	assert.Equal(t, base.AvKindVideo, pkt.Kind)
	assert.Equal(t, uint32(40), pkt.Timestamp)
	assert.Equal(t, avcKeyFrame, pkt.Payload)

	tag = newTag(TagTypeAudio, 41, aacRaw)
	pkt, ok = tag.ToAvPacket()
	assert.Equal(t, true, ok)
	assert.Equal(t, base.AvKindAudio, pkt.Kind)

	tag = newTag(TagTypeMetadata, 0, metadataBody)
	_, ok = tag.ToAvPacket()
	assert.Equal(t, false, ok)

	tag = newTag(TagTypeAudio, 0, nil)
	_, ok = tag.ToAvPacket()
	assert.Equal(t, false, ok)

	back := AvPacket2Tag(base.AvPacket{Kind: base.AvKindAudio, Timestamp: 41, Payload: aacRaw})
	assert.Equal(t, PackHttpflvTag(TagTypeAudio, 41, aacRaw), back.Raw)
	assert.Equal(t, uint32(41), back.Header.Timestamp)
}

func TestFlvFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "in.flv")
	tags := []Tag{
		newTag(TagTypeMetadata, 0, metadataBody),
		newTag(TagTypeVideo, 0, avcSeqHeader),
		newTag(TagTypeAudio, 0, aacSeqHeader),
		newTag(TagTypeVideo, 0, avcKeyFrame),
		newTag(TagTypeAudio, 23, aacRaw),
		newTag(TagTypeVideo, 33, avcInter),
	}

	var ffw FlvFileWriter
	assert.Equal(t, base.ErrFlvFileNotOpened, ffw.WriteFlvHeader())
	assert.Equal(t, "", ffw.Name())
	err := ffw.Open(filename)
	assert.Equal(t, nil, err)
	assert.Equal(t, filename, ffw.Name())
	assert.Equal(t, nil, ffw.WriteFlvHeader())
	for _, tag := range tags {
		assert.Equal(t, nil, ffw.WriteTag(tag))
	}
	// 末尾不完整的tag
	assert.Equal(t, nil, ffw.WriteRaw(PackHttpflvTag(TagTypeVideo, 66, avcInter)[:8]))
	assert.Equal(t, nil, ffw.Dispose())

	out, err := ReadAllTagsFromFlvFile(filename)
	assert.Equal(t, nil, err)
	assert.Equal(t, len(tags), len(out))
	for i := range tags {
		assert.Equal(t, tags[i].Header, out[i].Header)
		assert.Equal(t, tags[i].Raw, out[i].Raw)
	}
}

func TestFlvFileInvalid(t *testing.T) {
	_, err := ReadAllTagsFromFlvFile(filepath.Join(t.TempDir(), "not_exist.flv"))
	assert.IsNotNil(t, err)

	filename := filepath.Join(t.TempDir(), "bad.flv")
	var ffw FlvFileWriter
	assert.Equal(t, nil, ffw.Open(filename))
	assert.Equal(t, nil, ffw.WriteRaw([]byte("NOT A FLV FILE")))
	assert.Equal(t, nil, ffw.Dispose())
	_, err = ReadAllTagsFromFlvFile(filename)
	assert.Equal(t, base.ErrFlvInvalidHeader, err)

	var ffr FlvFileReader
	_, err = ffr.ReadTag()
	assert.Equal(t, base.ErrFlvFileNotOpened, err)
	_, err = ffr.ReadFlvHeader()
	assert.Equal(t, base.ErrFlvFileNotOpened, err)
	ffr.Dispose()
}
