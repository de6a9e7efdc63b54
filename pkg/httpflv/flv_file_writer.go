// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package httpflv

import (
	"os"

	"github.com/q191201771/rtmppub/pkg/base"
)

// FlvFileWriter 将tag写入FLV文件，比如把待推送的数据录制下来
type FlvFileWriter struct {
	fp *os.File
}

func (ffw *FlvFileWriter) Open(filename string) (err error) {
	ffw.fp, err = os.Create(filename)
	return
}

func (ffw *FlvFileWriter) WriteRaw(b []byte) (err error) {
	if ffw.fp == nil {
		return base.ErrFlvFileNotOpened
	}
	_, err = ffw.fp.Write(b)
	return
}

func (ffw *FlvFileWriter) WriteFlvHeader() (err error) {
	return ffw.WriteRaw(FlvHeader)
}

func (ffw *FlvFileWriter) WriteTag(tag Tag) (err error) {
	return ffw.WriteRaw(tag.Raw)
}

func (ffw *FlvFileWriter) Dispose() error {
	if ffw.fp == nil {
		return base.ErrFlvFileNotOpened
	}
	return ffw.fp.Close()
}

func (ffw *FlvFileWriter) Name() string {
	if ffw.fp == nil {
		return ""
	}
	return ffw.fp.Name()
}
