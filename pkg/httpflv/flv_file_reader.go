// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package httpflv

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/q191201771/rtmppub/pkg/base"
)

type FlvFileReader struct {
	fp *os.File
	rd *bufio.Reader
}

func (ffr *FlvFileReader) Open(filename string) (err error) {
	ffr.fp, err = os.Open(filename)
	if err != nil {
		return
	}
	ffr.rd = bufio.NewReader(ffr.fp)
	return
}

// ReadFlvHeader 读取并检查文件头，包含第一个prev tag size
func (ffr *FlvFileReader) ReadFlvHeader() ([]byte, error) {
	if ffr.rd == nil {
		return nil, base.ErrFlvFileNotOpened
	}
	flvHeader := make([]byte, flvHeaderSize)
	if _, err := io.ReadFull(ffr.rd, flvHeader); err != nil {
		return flvHeader, err
	}
	if flvHeader[0] != 'F' || flvHeader[1] != 'L' || flvHeader[2] != 'V' {
		return flvHeader, base.ErrFlvInvalidHeader
	}
	return flvHeader, nil
}

func (ffr *FlvFileReader) ReadTag() (Tag, error) {
	if ffr.rd == nil {
		return Tag{}, base.ErrFlvFileNotOpened
	}
	return readTag(ffr.rd)
}

func (ffr *FlvFileReader) Dispose() {
	if ffr.fp != nil {
		_ = ffr.fp.Close()
	}
}

// ReadAllTagsFromFlvFile 一次性将文件中所有tag读入内存
//
// 文件末尾不完整的tag被丢弃
//
func ReadAllTagsFromFlvFile(filename string) ([]Tag, error) {
	var tags []Tag

	var ffr FlvFileReader
	defer ffr.Dispose()
	err := ffr.Open(filename)
	if err != nil {
		return nil, err
	}
	if _, err = ffr.ReadFlvHeader(); err != nil {
		return nil, err
	}

	for {
		tag, err := ffr.ReadTag()
		if err != nil {
			if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
				return tags, nil
			}
			return tags, err
		}
		tags = append(tags, tag)
	}
	// never reach here
}
