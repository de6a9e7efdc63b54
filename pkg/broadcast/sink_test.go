// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package broadcast

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/q191201771/naza/pkg/assert"
	"go.uber.org/goleak"
)

func TestSerialExecutor(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := NewSerialExecutor()
	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		e.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 99 {
				close(done)
			}
		})
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("wait tasks timeout")
	}
	mu.Lock()
	for i := 0; i < 100; i++ {
		assert.Equal(t, i, got[i])
	}
	mu.Unlock()

	e.Close()
	e.Close()
	e.Post(func() {
		t.Fatalf("task posted after close")
	})
}

// 在task中关闭
func TestSerialExecutorCloseInTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := NewSerialExecutor()
	done := make(chan struct{})
	e.Post(func() {
		e.Close()
		close(done)
	})
	e.Post(func() {
		t.Errorf("task after close should be dropped")
	})
	<-done
}

func TestExecutorFunc(t *testing.T) {
	ch := make(chan func(), 1)
	e := ExecutorFunc(func(task func()) {
		ch <- task
	})
	called := false
	e.Post(func() {
		called = true
	})
	assert.Equal(t, false, called)
	(<-ch)()
	assert.Equal(t, true, called)
}

func TestCallbackSink(t *testing.T) {
	var tasks []func()
	sink := NewCallbackSink("SINK1", ExecutorFunc(func(task func()) {
		tasks = append(tasks, task)
	}))
	observer := newRecordObserver()

	// 没有注册observer时直接丢弃
	sink.NotifyStatus(StatusReady)
	tasks[0]()
	assert.Equal(t, 0, len(observer.snapshot()))

	sink.SetObserver(observer)
	sink.NotifyStatus(StatusReady)
	sink.NotifyError(errors.New("mock error"))
	sink.NotifyStatus(StatusBroadcasting)
	assert.Equal(t, 0, len(observer.snapshot()))
	tasks[1]()
	tasks[2]()
	assert.Equal(t, []string{"ready", "error"}, observer.snapshot())

	// 已经投递但还没有开始的回调，在Close之后不再执行
	sink.Close()
	tasks[3]()
	sink.NotifyStatus(StatusIdle)
	assert.Equal(t, 4, len(tasks))
	assert.Equal(t, []string{"ready", "error"}, observer.snapshot())
}
