// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package rtmp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/q191201771/naza/pkg/nazaerrors"
	"github.com/q191201771/rtmppub/pkg/base"
)

// ClientConnection rtmp推流客户端的连接层
//
// 负责建连、握手、connect/createStream信令，以及之后的信令收发。
// 连接上发生的状态变化，通过 SetStatusListener 注册的回调通知给上层，每次Connect对应一个单次的事件序列。
//
// 协程安全。
//
type ClientConnection struct {
	uniqueKey   string
	option      ClientConnectionOption
	sessionStat base.BasicSessionStat

	mu        sync.Mutex
	curr      *connectAttempt
	connected bool
	closed    bool
	listener  OnStatusEvent
	attemptId uint32
}

type ClientConnectionOption struct {
	// 单位毫秒，如果为0，则没有超时
	ConnectTimeoutMs int // 从发起连接（包含了建立连接的时间）到收到createStream信令结果的超时
	WriteTimeoutMs   int // 连接成功后，发送数据的超时

	ReadBufSize   int // io层读取数据时的缓冲大小，如果为0，则没有缓冲
	WriteChanSize int // 连接成功后，io层发送数据的异步队列大小，如果为0，则同步发送

	HandshakeComplexFlag bool // 握手是否使用复杂模式

	PeerWinAckSize int // 对端没有发送WinAckSize时，本端回复ack使用的窗口大小，0表示不回复

	// 以下两项为空时使用默认值
	Dial      func(ctx context.Context, network, addr string) (net.Conn, error)
	TlsConfig *tls.Config // rtmps使用
}

var defaultClientConnectionOption = ClientConnectionOption{
	ConnectTimeoutMs:     10000,
	WriteTimeoutMs:       0,
	ReadBufSize:          readBufSize,
	WriteChanSize:        wChanSize,
	HandshakeComplexFlag: false,
	PeerWinAckSize:       0,
}

type ModClientConnectionOption func(option *ClientConnectionOption)

// 本次Connect已经被新的Connect或者Close取代
var errAttemptDropped = errors.New("rtmppub.rtmp: connect attempt dropped")

func NewClientConnection(modOptions ...ModClientConnectionOption) *ClientConnection {
	option := defaultClientConnectionOption
	for _, fn := range modOptions {
		fn(&option)
	}

	uk := base.GenUkRtmpClientConnection()
	c := &ClientConnection{
		uniqueKey:   uk,
		option:      option,
		sessionStat: base.NewBasicSessionStat(uk, base.ProtocolRtmp),
	}
	base.Log.Infof("[%s] lifecycle new rtmp ClientConnection. connection=%p", uk, c)
	return c
}

// SetStatusListener 只能注册一个，后注册的覆盖先注册的
func (c *ClientConnection) SetStatusListener(listener OnStatusEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = listener
}

// Connect 阻塞直到收到createStream信令的结果，或者发生错误，或者超时
//
// 如果之前的连接还存在，先关闭之前的连接。
//
// @return 地址非法时返回 base.ErrInvalidUrl ，并且不产生事件。
//         其他错误同时满足 base.ErrConnectFailed 和底层错误，并产生 StatusConnectFailed 事件。
//
func (c *ClientConnection) Connect(ctx context.Context, rawUrl string) error {
	urlCtx, err := base.ParseRtmpUrl(rawUrl)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return base.ErrConnectionClosed
	}
	prev := c.curr
	c.attemptId++
	a := newConnectAttempt(c, c.attemptId, urlCtx)
	c.curr = a
	c.connected = false
	c.mu.Unlock()

	if prev != nil {
		base.Log.Infof("[%s] close previous connection before connect. attempt=%d", c.uniqueKey, prev.id)
		_ = prev.dispose()
	}

	base.Log.Debugf("[%s] Connect. attempt=%d, url=%s", c.uniqueKey, a.id, urlCtx.RawUrlWithoutUserInfo)
	if c.option.ConnectTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.option.ConnectTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	go a.run(ctx)

	select {
	case <-ctx.Done():
		return c.failAttempt(a, ctx.Err())
	case err := <-a.errChan:
		return c.failAttempt(a, err)
	case <-a.doResultChan:
		return nil
	}
}

// Publish 发送releaseStream、FCPublish、publish信令，不等待服务端的结果
//
// @param streamName: 为空时使用url中的stream name
//
func (c *ClientConnection) Publish(streamName string) error {
	a, err := c.connectedAttempt()
	if err != nil {
		return err
	}
	if streamName == "" {
		streamName = a.streamNameWithRawQuery()
	}
	return a.publish(streamName)
}

// Unpublish 发送FCUnpublish、deleteStream信令
func (c *ClientConnection) Unpublish() error {
	a, err := c.connectedAttempt()
	if err != nil {
		return err
	}
	return a.unpublish()
}

// WriteMsg 发送音视频以及metadata
//
// msg.Header中的Csid与MsgStreamId由内部填写
//
func (c *ClientConnection) WriteMsg(msg base.RtmpMsg) error {
	a, err := c.connectedAttempt()
	if err != nil {
		return err
	}
	return a.writeMsg(msg)
}

// Close 关闭连接，并删除注册的回调，可重复调用
//
// 返回后，不会再有新的事件回调
//
func (c *ClientConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.listener = nil
	a := c.curr
	c.curr = nil
	c.mu.Unlock()

	base.Log.Infof("[%s] lifecycle dispose rtmp ClientConnection.", c.uniqueKey)
	if a == nil {
		return nil
	}
	return a.dispose()
}

// Disconnect 断开当前的连接（包括还在进行中的连接），该次连接之后的事件被丢弃
//
// 与 Close 不同，注册的回调保留，之后可以再次 Connect
//
func (c *ClientConnection) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	a := c.curr
	c.curr = nil
	c.connected = false
	c.mu.Unlock()

	if a == nil {
		return nil
	}
	base.Log.Infof("[%s] disconnect. attempt=%d", c.uniqueKey, a.id)
	return a.dispose()
}

func (c *ClientConnection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *ClientConnection) UniqueKey() string {
	return c.uniqueKey
}

// ----- ISessionStat --------------------------------------------------------------------------------------------------

func (c *ClientConnection) GetStat() base.StatSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionStat.GetStatWithConn(c.currStatableLocked())
}

func (c *ClientConnection) UpdateStat(intervalSec uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionStat.UpdateStatWitchConn(c.currStatableLocked(), intervalSec)
}

// ---------------------------------------------------------------------------------------------------------------------

func (c *ClientConnection) currStatableLocked() base.IStatable {
	if c.curr == nil {
		return nil
	}
	conn := c.curr.getConn()
	if conn == nil {
		return nil
	}
	return conn
}

func (c *ClientConnection) connectedAttempt() (*connectAttempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.connected || c.curr == nil {
		return nil, base.ErrNotConnected
	}
	return c.curr, nil
}

// failAttempt Connect失败时调用
func (c *ClientConnection) failAttempt(a *connectAttempt, cause error) error {
	c.mu.Lock()
	// 超时和成功同时发生
	if a.succeeded {
		c.mu.Unlock()
		return nil
	}
	listener := c.terminateLocked(a)
	c.mu.Unlock()

	_ = a.dispose()
	err := base.NewErrConnectFailed(cause)
	base.Log.Warnf("[%s] connect failed. attempt=%d, err=%+v", c.uniqueKey, a.id, err)
	if listener != nil {
		listener(StatusEvent{Code: StatusConnectFailed, Err: err})
	}
	return err
}

// succeedAttempt 收到createStream结果时调用
//
// @return 如果本次连接已经被取代，或者已经失败，返回false
//
func (c *ClientConnection) succeedAttempt(a *connectAttempt, streamId int) bool {
	c.mu.Lock()
	if c.closed || c.curr != a || a.terminated {
		c.mu.Unlock()
		return false
	}
	a.succeeded = true
	a.streamId = streamId
	c.connected = true
	c.sessionStat.SetRemoteAddr(a.urlCtx.HostWithPort)
	if a.urlCtx.Scheme == "rtmps" {
		c.sessionStat.SetProtocol(base.ProtocolRtmps)
	}
	listener := c.listener
	c.mu.Unlock()

	if listener != nil {
		listener(StatusEvent{Code: StatusConnectSuccess, Raw: CodeNetConnectionConnectSuccess})
	}
	a.doResultChan <- struct{}{}
	return true
}

// emit 非终结事件
func (c *ClientConnection) emit(a *connectAttempt, event StatusEvent) {
	c.mu.Lock()
	if c.closed || c.curr != a || a.terminated {
		c.mu.Unlock()
		base.Log.Debugf("[%s] drop status event of stale attempt. attempt=%d, code=%s", c.uniqueKey, a.id, event.Raw)
		return
	}
	listener := c.listener
	c.mu.Unlock()

	if listener != nil {
		listener(event)
	}
}

// emitTerminal 失败或者关闭事件，每次Connect最多产生一次
func (c *ClientConnection) emitTerminal(a *connectAttempt, event StatusEvent) {
	c.mu.Lock()
	listener := c.terminateLocked(a)
	c.mu.Unlock()

	if listener != nil {
		listener(event)
	}
}

// terminateLocked 调用时需持有c.mu
//
// @return 需要通知的回调，为nil时表示不需要通知
//
func (c *ClientConnection) terminateLocked(a *connectAttempt) OnStatusEvent {
	if a.terminated {
		return nil
	}
	a.terminated = true
	if c.closed || c.curr != a {
		return nil
	}
	c.connected = false
	return c.listener
}

// onAttemptExit 连接的读取协程退出时调用
func (c *ClientConnection) onAttemptExit(a *connectAttempt, err error) {
	c.mu.Lock()
	succ := a.succeeded
	c.mu.Unlock()

	if !succ {
		// 由Connect处理
		select {
		case a.errChan <- err:
		default:
		}
		return
	}

	_ = a.dispose()
	if errors.Is(err, errAttemptDropped) {
		return
	}
	base.Log.Infof("[%s] connection closed. attempt=%d, err=%+v", c.uniqueKey, a.id, err)
	c.emitTerminal(a, StatusEvent{Code: StatusConnectClosed, Err: base.NewErrConnectionClosed(nazaerrors.Wrap(err))})
}

func (c *ClientConnection) String() string {
	return fmt.Sprintf("ClientConnection(%s)", c.uniqueKey)
}
