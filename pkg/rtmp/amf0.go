// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

// amf0.go
// @pure
// 提供amf0格式的编码与解码的操作

import (
	"bytes"
	"fmt"
	"io"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/rtmppub/pkg/base"
)

const (
	Amf0TypeMarkerNumber      = uint8(0x00)
	Amf0TypeMarkerBoolean     = uint8(0x01)
	Amf0TypeMarkerString      = uint8(0x02)
	Amf0TypeMarkerObject      = uint8(0x03)
	Amf0TypeMarkerNull        = uint8(0x05)
	Amf0TypeMarkerUndefined   = uint8(0x06)
	Amf0TypeMarkerEcmaArray   = uint8(0x08)
	Amf0TypeMarkerObjectEnd   = uint8(0x09)
	Amf0TypeMarkerStrictArray = uint8(0x0a)
	Amf0TypeMarkerDate        = uint8(0x0b)
	Amf0TypeMarkerLongString  = uint8(0x0c)
)

var Amf0TypeMarkerObjectEndBytes = []byte{0, 0, Amf0TypeMarkerObjectEnd}

type ObjectPair struct {
	Key   string
	Value interface{}
}

type ObjectPairArray []ObjectPair

func (o ObjectPairArray) Find(key string) interface{} {
	for _, op := range o {
		if op.Key == key {
			return op.Value
		}
	}
	return nil
}

func (o ObjectPairArray) FindString(key string) (string, error) {
	for _, op := range o {
		if op.Key == key {
			if s, ok := op.Value.(string); ok {
				return s, nil
			}
		}
	}
	return "", base.ErrAmfNotExist
}

func (o ObjectPairArray) FindNumber(key string) (int, error) {
	for _, op := range o {
		if op.Key == key {
			if n, ok := op.Value.(float64); ok {
				return int(n), nil
			}
		}
	}
	return -1, base.ErrAmfNotExist
}

func (o ObjectPairArray) DebugString() string {
	var buf bytes.Buffer
	for _, op := range o {
		buf.WriteString(fmt.Sprintf("%s: %+v\n", op.Key, op.Value))
	}
	return buf.String()
}

type amf0 struct{}

var Amf0 amf0

// ----- write ---------------------------------------------------------------------------------------------------------

func (amf0) WriteNumber(writer io.Writer, val float64) error {
	if _, err := writer.Write([]byte{Amf0TypeMarkerNumber}); err != nil {
		return err
	}
	return bele.WriteBe(writer, val)
}

func (amf0) WriteString(writer io.Writer, val string) error {
	if len(val) < 65536 {
		if _, err := writer.Write([]byte{Amf0TypeMarkerString}); err != nil {
			return err
		}
		if err := bele.WriteBe(writer, uint16(len(val))); err != nil {
			return err
		}
	} else {
		if _, err := writer.Write([]byte{Amf0TypeMarkerLongString}); err != nil {
			return err
		}
		if err := bele.WriteBe(writer, uint32(len(val))); err != nil {
			return err
		}
	}
	_, err := writer.Write([]byte(val))
	return err
}

func (amf0) WriteNull(writer io.Writer) error {
	_, err := writer.Write([]byte{Amf0TypeMarkerNull})
	return err
}

func (amf0) WriteBoolean(writer io.Writer, b bool) error {
	v := uint8(0)
	if b {
		v = 1
	}
	_, err := writer.Write([]byte{Amf0TypeMarkerBoolean, v})
	return err
}

func (amf0) WriteObject(writer io.Writer, opa ObjectPairArray) error {
	if _, err := writer.Write([]byte{Amf0TypeMarkerObject}); err != nil {
		return err
	}
	if err := Amf0.writePairs(writer, opa); err != nil {
		return err
	}
	_, err := writer.Write(Amf0TypeMarkerObjectEndBytes)
	return err
}

func (amf0) WriteEcmaArray(writer io.Writer, opa ObjectPairArray) error {
	if _, err := writer.Write([]byte{Amf0TypeMarkerEcmaArray}); err != nil {
		return err
	}
	if err := bele.WriteBe(writer, uint32(len(opa))); err != nil {
		return err
	}
	if err := Amf0.writePairs(writer, opa); err != nil {
		return err
	}
	_, err := writer.Write(Amf0TypeMarkerObjectEndBytes)
	return err
}

func (amf0) writePairs(writer io.Writer, opa ObjectPairArray) error {
	for i := 0; i < len(opa); i++ {
		if err := bele.WriteBe(writer, uint16(len(opa[i].Key))); err != nil {
			return err
		}
		if _, err := writer.Write([]byte(opa[i].Key)); err != nil {
			return err
		}
		var err error
		switch v := opa[i].Value.(type) {
		case string:
			err = Amf0.WriteString(writer, v)
		case int:
			err = Amf0.WriteNumber(writer, float64(v))
		case float64:
			err = Amf0.WriteNumber(writer, v)
		case bool:
			err = Amf0.WriteBoolean(writer, v)
		case nil:
			err = Amf0.WriteNull(writer)
		case ObjectPairArray:
			err = Amf0.WriteObject(writer, v)
		default:
			err = fmt.Errorf("%w. key=%s, value=%+v", base.ErrAmfInvalidType, opa[i].Key, v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ----- read ----------------------------------------------------------------------------------------------------------

// read类型的方法集合
//
// 从输入参数<b>切片中读取函数名所指定的amf类型数据
// 注意，方法内部不会修改输入参数<b>切片的内容
//
// 返回值如无特殊说明，则
// 第1个参数为读取出的所指定类型的数据
// 第2个参数为读取时从<b>消耗的字节大小
// 第3个参数error，如果不等于nil，表示读取失败

func (amf0) ReadStringWithoutType(b []byte) (string, int, error) {
	if len(b) < 2 {
		return "", 0, base.ErrAmfTooShort
	}
	l := int(bele.BeUint16(b))
	if l > len(b)-2 {
		return "", 0, base.ErrAmfTooShort
	}
	return string(b[2 : 2+l]), 2 + l, nil
}

func (amf0) ReadLongStringWithoutType(b []byte) (string, int, error) {
	if len(b) < 4 {
		return "", 0, base.ErrAmfTooShort
	}
	l := int(bele.BeUint32(b))
	if l > len(b)-4 {
		return "", 0, base.ErrAmfTooShort
	}
	return string(b[4 : 4+l]), 4 + l, nil
}

func (amf0) ReadString(b []byte) (val string, l int, err error) {
	if len(b) < 1 {
		return "", 0, base.ErrAmfTooShort
	}
	switch b[0] {
	case Amf0TypeMarkerString:
		val, l, err = Amf0.ReadStringWithoutType(b[1:])
		if err != nil {
			return "", 0, err
		}
		l++
	case Amf0TypeMarkerLongString:
		val, l, err = Amf0.ReadLongStringWithoutType(b[1:])
		if err != nil {
			return "", 0, err
		}
		l++
	default:
		err = base.NewErrAmfInvalidType(b[0])
	}
	return
}

func (amf0) ReadNumber(b []byte) (float64, int, error) {
	if len(b) < 9 {
		return 0, 0, base.ErrAmfTooShort
	}
	if b[0] != Amf0TypeMarkerNumber {
		return 0, 0, base.NewErrAmfInvalidType(b[0])
	}
	return bele.BeFloat64(b[1:]), 9, nil
}

func (amf0) ReadBoolean(b []byte) (bool, int, error) {
	if len(b) < 2 {
		return false, 0, base.ErrAmfTooShort
	}
	if b[0] != Amf0TypeMarkerBoolean {
		return false, 0, base.NewErrAmfInvalidType(b[0])
	}
	return b[1] != 0x0, 2, nil
}

func (amf0) ReadNull(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, base.ErrAmfTooShort
	}
	if b[0] != Amf0TypeMarkerNull {
		return 0, base.NewErrAmfInvalidType(b[0])
	}
	return 1, nil
}

// ReadObjectOrArray 读取object或者ecma array，内部嵌套的object/ecma array解析为 ObjectPairArray
func (amf0) ReadObjectOrArray(b []byte) (ObjectPairArray, int, error) {
	if len(b) < 1 {
		return nil, 0, base.ErrAmfTooShort
	}
	switch b[0] {
	case Amf0TypeMarkerObject:
		opa, l, err := Amf0.readPairs(b[1:])
		if err != nil {
			return nil, 0, err
		}
		return opa, 1 + l, nil
	case Amf0TypeMarkerEcmaArray:
		if len(b) < 5 {
			return nil, 0, base.ErrAmfTooShort
		}
		// 数组长度只作参考，以object end为准
		opa, l, err := Amf0.readPairs(b[5:])
		if err != nil {
			return nil, 0, err
		}
		return opa, 5 + l, nil
	}
	return nil, 0, base.NewErrAmfInvalidType(b[0])
}

// ReadAny 读取任意一个支持的amf值
//
// 返回值类型：float64, bool, string, nil(null和undefined), ObjectPairArray, []interface{}(strict array), float64(date)
//
func (amf0) ReadAny(b []byte) (interface{}, int, error) {
	if len(b) < 1 {
		return nil, 0, base.ErrAmfTooShort
	}
	switch b[0] {
	case Amf0TypeMarkerNumber:
		v, l, err := Amf0.ReadNumber(b)
		return v, l, err
	case Amf0TypeMarkerBoolean:
		v, l, err := Amf0.ReadBoolean(b)
		return v, l, err
	case Amf0TypeMarkerString, Amf0TypeMarkerLongString:
		v, l, err := Amf0.ReadString(b)
		return v, l, err
	case Amf0TypeMarkerNull, Amf0TypeMarkerUndefined:
		return nil, 1, nil
	case Amf0TypeMarkerObject, Amf0TypeMarkerEcmaArray:
		v, l, err := Amf0.ReadObjectOrArray(b)
		return v, l, err
	case Amf0TypeMarkerStrictArray:
		v, l, err := Amf0.readStrictArray(b)
		return v, l, err
	case Amf0TypeMarkerDate:
		// double + s16 time zone
		if len(b) < 11 {
			return nil, 0, base.ErrAmfTooShort
		}
		return bele.BeFloat64(b[1:]), 11, nil
	}
	return nil, 0, base.NewErrAmfInvalidType(b[0])
}

func (amf0) readPairs(b []byte) (ObjectPairArray, int, error) {
	var opa ObjectPairArray
	index := 0
	for {
		if len(b)-index >= 3 && bytes.Equal(b[index:index+3], Amf0TypeMarkerObjectEndBytes) {
			return opa, index + 3, nil
		}

		k, l, err := Amf0.ReadStringWithoutType(b[index:])
		if err != nil {
			return nil, 0, err
		}
		index += l
		v, l, err := Amf0.ReadAny(b[index:])
		if err != nil {
			return nil, 0, err
		}
		index += l
		opa = append(opa, ObjectPair{Key: k, Value: v})
	}
}

func (amf0) readStrictArray(b []byte) ([]interface{}, int, error) {
	if len(b) < 5 {
		return nil, 0, base.ErrAmfTooShort
	}
	n := int(bele.BeUint32(b[1:]))
	index := 5
	ret := make([]interface{}, 0)
	for i := 0; i < n; i++ {
		v, l, err := Amf0.ReadAny(b[index:])
		if err != nil {
			return nil, 0, err
		}
		index += l
		ret = append(ret, v)
	}
	return ret, index, nil
}
