// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package broadcast

import (
	"sync"
)

// Executor 回调上层时使用的执行环境，比如UI线程，或者一个专用的协程
//
// Post 不应阻塞调用方等待 task 执行完成
//
type Executor interface {
	Post(task func())
}

// ExecutorFunc 用于将任意函数适配成 Executor ，比如投递到业务方自己的channel中
type ExecutorFunc func(task func())

func (fn ExecutorFunc) Post(task func()) {
	fn(task)
}

// InlineExecutor 在调用方的协程中直接执行
//
// 注意，回调发生在网络读取协程或者定时器协程中，回调中不要做耗时操作
//
type InlineExecutor struct{}

func (InlineExecutor) Post(task func()) {
	task()
}

// SerialExecutor 在一个专用的协程中按投递顺序执行
type SerialExecutor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
}

func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{}
	e.cond = sync.NewCond(&e.mu)
	go e.runLoop()
	return e
}

func (e *SerialExecutor) Post(task func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.tasks = append(e.tasks, task)
	e.cond.Signal()
}

// Close 丢弃未执行的task，不等待正在执行的task结束，可重复调用
//
// 可以在task中调用
//
func (e *SerialExecutor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.tasks = nil
	e.cond.Broadcast()
}

func (e *SerialExecutor) runLoop() {
	for {
		e.mu.Lock()
		for len(e.tasks) == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.closed {
			e.mu.Unlock()
			return
		}
		task := e.tasks[0]
		e.tasks[0] = nil
		e.tasks = e.tasks[1:]
		e.mu.Unlock()

		task()
	}
}
