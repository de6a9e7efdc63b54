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
	"crypto/md5"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/connection"
	"github.com/q191201771/naza/pkg/nazabytes"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/rtmppub/pkg/base"
)

// 服务端要求鉴权，需要使用新的tcUrl重新连接
var errAuthRetry = errors.New("rtmppub.rtmp: need auth retry")

const maxAuthRetry = 2

type AuthInfo struct {
	salt      string
	challenge string
	opaque    string
}

// connectAttempt 对应一次Connect调用，以及该次连接成功后的整个生命周期
type connectAttempt struct {
	c      *ClientConnection
	id     uint32
	urlCtx base.UrlContext

	mu            sync.Mutex
	conn          connection.Connection
	hc            IHandshakeClient
	chunkComposer *ChunkComposer
	disposed      bool

	writeMu sync.Mutex // 保护packer以及写操作的顺序
	packer  *MessagePacker

	doResultChan chan struct{}
	errChan      chan error

	// 以下由c.mu保护
	succeeded  bool
	terminated bool
	streamId   int

	// 以下只在读协程中访问
	authInfo       AuthInfo
	peerWinAckSize int
	recvLastAck    uint64
	seqNum         uint32
	userCtrlDump   base.LogDump
	avDump         base.LogDump

	publishName string
}

func newConnectAttempt(c *ClientConnection, id uint32, urlCtx base.UrlContext) *connectAttempt {
	return &connectAttempt{
		c:              c,
		id:             id,
		urlCtx:         urlCtx,
		doResultChan:   make(chan struct{}, 1),
		errChan:        make(chan error, 1),
		peerWinAckSize: c.option.PeerWinAckSize,
		userCtrlDump:   base.NewLogDump(base.Log, base.BroadcastDebugLogMaxCount),
		avDump:         base.NewLogDump(base.Log, base.BroadcastDebugLogMaxCount),
	}
}

func (a *connectAttempt) uk() string {
	return a.c.uniqueKey
}

func (a *connectAttempt) run(ctx context.Context) {
	var err error
	for i := 0; ; i++ {
		err = a.runOnce(ctx)
		if errors.Is(err, errAuthRetry) && i < maxAuthRetry {
			base.Log.Infof("[%s] reconnect with auth info. attempt=%d", a.uk(), a.id)
			a.closeConn()
			continue
		}
		break
	}
	if a.isDisposed() {
		err = errAttemptDropped
	}
	a.c.onAttemptExit(a, err)
}

func (a *connectAttempt) runOnce(ctx context.Context) error {
	if err := a.tcpConnect(ctx); err != nil {
		return err
	}
	if err := a.handshake(); err != nil {
		return err
	}

	base.Log.Infof("[%s] > W SetChunkSize %d.", a.uk(), base.RtmpLocalChunkSize)
	if err := a.write(func(conn connection.Connection, packer *MessagePacker) error {
		return packer.writeChunkSize(conn, base.RtmpLocalChunkSize)
	}); err != nil {
		return err
	}

	base.Log.Infof("[%s] > W connect('%s'). tcUrl=%s", a.uk(), a.appName(), a.tcUrl())
	if err := a.write(func(conn connection.Connection, packer *MessagePacker) error {
		return packer.writeConnect(conn, a.appName(), a.tcUrl())
	}); err != nil {
		return err
	}

	return a.chunkComposer.RunLoop(a.getConn(), a.doMsg)
}

func (a *connectAttempt) tcpConnect(ctx context.Context) error {
	base.Log.Infof("[%s] > tcp connect. addr=%s", a.uk(), a.urlCtx.HostWithPort)

	dial := a.c.option.Dial
	if dial == nil {
		var d net.Dialer
		dial = d.DialContext
	}
	rawConn, err := dial(ctx, "tcp", a.urlCtx.HostWithPort)
	if err != nil {
		return err
	}

	if a.urlCtx.Scheme == "rtmps" {
		conf := a.c.option.TlsConfig
		if conf == nil {
			// rtmps跳过证书认证
			conf = &tls.Config{
				InsecureSkipVerify: true,
			}
		}
		tlsConn := tls.Client(rawConn, conf)
		if err = tlsConn.HandshakeContext(ctx); err != nil {
			_ = rawConn.Close()
			return err
		}
		rawConn = tlsConn
	}

	conn := connection.New(rawConn, func(option *connection.Option) {
		option.ReadBufSize = a.c.option.ReadBufSize
		option.WriteChanFullBehavior = connection.WriteChanFullBehaviorBlock
	})

	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		_ = conn.Close()
		return errAttemptDropped
	}
	a.conn = conn
	a.hc = NewHandshakeClient(a.c.option.HandshakeComplexFlag)
	a.chunkComposer = NewChunkComposer()
	a.mu.Unlock()

	a.writeMu.Lock()
	a.packer = NewMessagePacker()
	a.writeMu.Unlock()
	return nil
}

func (a *connectAttempt) handshake() error {
	conn := a.getConn()

	base.Log.Infof("[%s] > W Handshake C0+C1.", a.uk())
	if err := a.hc.WriteC0C1(conn); err != nil {
		return err
	}

	if err := a.hc.ReadS0S1(conn); err != nil {
		return err
	}
	base.Log.Infof("[%s] < R Handshake S0+S1.", a.uk())

	base.Log.Infof("[%s] > W Handshake C2.", a.uk())
	if err := a.hc.WriteC2(conn); err != nil {
		return err
	}

	if err := a.hc.ReadS2(conn); err != nil {
		return err
	}
	base.Log.Infof("[%s] < R Handshake S2.", a.uk())
	return nil
}

// ----- 读协程 -----------------------------------------------------------------------------------------------------------

func (a *connectAttempt) doMsg(stream *ChunkStream) error {
	if err := a.doRespAcknowledgement(); err != nil {
		return err
	}

	switch stream.header.MsgTypeId {
	case base.RtmpTypeIdWinAckSize, base.RtmpTypeIdBandwidth, base.RtmpTypeIdSetChunkSize, base.RtmpTypeIdAck, base.RtmpTypeIdAbortMessage:
		return a.doProtocolControlMessage(stream)
	case base.RtmpTypeIdUserControl:
		return a.doUserControl(stream)
	case base.RtmpTypeIdCommandMessageAmf0:
		return a.doCommandMessage(stream)
	case base.RtmpTypeIdCommandMessageAmf3:
		base.Log.Warnf("[%s] read command message amf3, ignore. %s", a.uk(), stream.toDebugString())
	case base.RtmpTypeIdMetadata:
		cmd, _ := stream.msg.peekStringWithType()
		base.Log.Infof("[%s] < R data message. cmd=%s", a.uk(), cmd)
	case base.RtmpTypeIdAudio, base.RtmpTypeIdVideo:
		if a.avDump.ShouldDump() {
			base.Log.Debugf("[%s] read av message on publish connection, ignore. header=%+v", a.uk(), stream.header)
		}
	default:
		base.Log.Warnf("[%s] read unknown message. typeid=%d, %s", a.uk(), stream.header.MsgTypeId, stream.toDebugString())
	}
	return nil
}

func (a *connectAttempt) doProtocolControlMessage(stream *ChunkStream) error {
	if stream.header.MsgTypeId == base.RtmpTypeIdAbortMessage {
		base.Log.Warnf("[%s] < R Abort Message. ignore.", a.uk())
		return nil
	}
	if stream.msg.len() < 4 {
		return base.NewErrRtmpShortBuffer(4, int(stream.msg.len()), "connectAttempt::doProtocolControlMessage")
	}
	val := bele.BeUint32(stream.msg.bytes())

	switch stream.header.MsgTypeId {
	case base.RtmpTypeIdWinAckSize:
		a.peerWinAckSize = int(val)
		base.Log.Infof("[%s] < R Window Acknowledgement Size: %d", a.uk(), a.peerWinAckSize)
	case base.RtmpTypeIdBandwidth:
		base.Log.Infof("[%s] < R Set Peer Bandwidth %d. ignore.", a.uk(), val)
	case base.RtmpTypeIdSetChunkSize:
		// composer内部会自动更新peer chunk size.
		base.Log.Infof("[%s] < R Set Chunk Size %d.", a.uk(), val)
	case base.RtmpTypeIdAck:
		if base.Log.GetOption().Level <= nazalog.LevelDebug {
			base.Log.Debugf("[%s] < R Acknowledgement %d.", a.uk(), val)
		}
	}
	return nil
}

func (a *connectAttempt) doUserControl(stream *ChunkStream) error {
	b := stream.msg.bytes()
	if len(b) >= 6 && bele.BeUint16(b) == uint16(base.RtmpUserControlPingRequest) {
		timestamp := bele.BeUint32(b[2:])
		return a.write(func(conn connection.Connection, packer *MessagePacker) error {
			return packer.writePingResponse(conn, timestamp)
		})
	}

	if a.userCtrlDump.ShouldDump() {
		base.Log.Debugf("[%s] read user control message, ignore. buf=%s", a.uk(), nazabytes.Prefix(b, 32))
	}
	return nil
}

func (a *connectAttempt) doCommandMessage(stream *ChunkStream) error {
	cmd, err := stream.msg.readStringWithType()
	if err != nil {
		return err
	}

	// close信令可能不携带transaction id
	if cmd == "close" {
		base.Log.Infof("[%s] < R close.", a.uk())
		return base.NewErrConnectionClosed(nil)
	}

	tid, err := stream.msg.readNumberWithType()
	if err != nil {
		return err
	}

	switch cmd {
	case "onBWDone":
		base.Log.Warnf("[%s] < R onBWDone. ignore.", a.uk())
	case "_result":
		return a.doResultMessage(stream, tid)
	case "onStatus":
		return a.doOnStatusMessage(stream)
	case "_error":
		return a.doErrorMessage(stream, tid)
	default:
		base.Log.Warnf("[%s] read unknown command message. cmd=%s, %s", a.uk(), cmd, stream.toDebugString())
	}
	return nil
}

func (a *connectAttempt) doResultMessage(stream *ChunkStream, tid int) error {
	switch tid {
	case tidClientConnect:
		if _, err := stream.msg.readNullOrObject(); err != nil {
			return err
		}
		infos, err := stream.msg.readObjectWithType()
		if err != nil {
			return err
		}
		code, err := infos.FindString("code")
		if err != nil {
			return err
		}
		if code != CodeNetConnectionConnectSuccess {
			return fmt.Errorf("%w. connect result code=%s", base.ErrRtmpUnexpectedMsg, code)
		}
		base.Log.Infof("[%s] < R _result(\"%s\").", a.uk(), code)
		base.Log.Infof("[%s] > W createStream().", a.uk())
		return a.write(func(conn connection.Connection, packer *MessagePacker) error {
			return packer.writeCreateStream(conn)
		})
	case tidClientCreateStream:
		if err := stream.msg.readNull(); err != nil {
			return err
		}
		sid, err := stream.msg.readNumberWithType()
		if err != nil {
			return err
		}
		base.Log.Infof("[%s] < R _result(). streamId=%d", a.uk(), sid)
		return a.onCreateStreamResult(sid)
	default:
		base.Log.Debugf("[%s] < R _result(). ignore. tid=%d", a.uk(), tid)
	}
	return nil
}

func (a *connectAttempt) onCreateStreamResult(streamId int) error {
	conn := a.getConn()
	a.writeMu.Lock()
	if a.c.option.WriteChanSize > 0 {
		conn.ModWriteChanSize(a.c.option.WriteChanSize)
	}
	conn.ModWriteTimeoutMs(a.c.option.WriteTimeoutMs)
	a.writeMu.Unlock()

	if !a.c.succeedAttempt(a, streamId) {
		return errAttemptDropped
	}
	return nil
}

func (a *connectAttempt) doOnStatusMessage(stream *ChunkStream) error {
	if _, err := stream.msg.readNullOrObject(); err != nil {
		return err
	}
	infos, err := stream.msg.readObjectWithType()
	if err != nil {
		return err
	}
	event := NewStatusEventFromInfo(infos)
	base.Log.Infof("[%s] < R onStatus('%s').", a.uk(), event.Raw)

	a.c.mu.Lock()
	succ := a.succeeded
	a.c.mu.Unlock()

	switch event.Code {
	case StatusConnectFailed, StatusConnectClosed:
		if !succ {
			return fmt.Errorf("%w. onStatus code=%s", base.ErrRtmpUnexpectedMsg, event.Raw)
		}
		event.Err = base.NewErrConnectionClosed(fmt.Errorf("onStatus code=%s", event.Raw))
		a.c.emitTerminal(a, event)
		return event.Err
	case StatusUnknown:
		if !succ {
			base.Log.Warnf("[%s] read on status message before connected, ignore. code=%s", a.uk(), event.Raw)
			return nil
		}
		event.Err = base.NewErrUnrecognizedStatus(event.Raw)
	}

	if succ {
		a.c.emit(a, event)
	}
	return nil
}

func (a *connectAttempt) doErrorMessage(stream *ChunkStream, tid int) error {
	if err := stream.msg.readNull(); err != nil {
		return err
	}
	infos, err := stream.msg.readObjectWithType()
	if err != nil {
		return err
	}
	code, _ := infos.FindString("code")
	description, _ := infos.FindString("description")
	base.Log.Warnf("[%s] < R _error(). tid=%d, code=%s, description=%s", a.uk(), tid, code, description)

	if tid == tidClientConnect && a.urlCtx.Username != "" {
		if err := a.dealErrorMessage(description); err != nil {
			return err
		}
		return errAuthRetry
	}

	a.c.mu.Lock()
	succ := a.succeeded
	a.c.mu.Unlock()
	if !succ {
		return fmt.Errorf("%w. _error code=%s, description=%s", base.ErrRtmpUnexpectedMsg, code, description)
	}
	return nil
}

// dealErrorMessage adobe鉴权
func (a *connectAttempt) dealErrorMessage(description string) error {
	if strings.Contains(description, "code=403 need auth") {
		// app和tcUrl需要加上streamid、authmod、user
		a.urlCtx.PathWithoutLastItem = fmt.Sprintf("%s/%s?authmod=adobe&user=%s", a.urlCtx.PathWithoutLastItem, a.urlCtx.LastItemOfPath, a.urlCtx.Username)
		return nil
	}

	if strings.Contains(description, "?reason=needauth") {
		descriptions := strings.Split(description, ":")
		if len(descriptions) != 3 {
			return fmt.Errorf("%w. invalid auth description: %s", base.ErrRtmpUnexpectedMsg, description)
		}
		descriptions[2] = strings.Replace(descriptions[2], " ", "", -1)
		replacestr := fmt.Sprintf("?reason=needauth&user=%s&", a.urlCtx.Username)
		a.parseAuthorityInfo(strings.Replace(descriptions[2], replacestr, "", -1))

		// base64(md5(username|salt|password))作为新的salt1
		mds := md5.Sum([]byte(a.urlCtx.Username + a.authInfo.salt + a.urlCtx.Password))
		salt1 := base64.StdEncoding.EncodeToString(mds[:])

		// response = base64(md5(salt1|opaque|challenge))
		mds1 := md5.Sum([]byte(salt1 + a.authInfo.opaque + a.authInfo.challenge))
		response := base64.StdEncoding.EncodeToString(mds1[:])

		// app和tcUrl需要加上challenge、response、opaque字段
		a.urlCtx.PathWithoutLastItem = fmt.Sprintf("%s&challenge=%s&response=%s&opaque=%s", a.urlCtx.PathWithoutLastItem, a.authInfo.challenge, response, a.authInfo.opaque)
		return nil
	}

	return fmt.Errorf("%w. invalid error description: %s", base.ErrRtmpUnexpectedMsg, description)
}

func (a *connectAttempt) parseAuthorityInfo(auth string) {
	// 解析salt、challenge、opaque字段
	res := strings.Split(auth, "&")
	for _, info := range res {
		if pos := strings.IndexAny(info, "="); pos > 0 {
			switch info[:pos] {
			case "salt":
				a.authInfo.salt = info[pos+1:]
			case "challenge":
				a.authInfo.challenge = info[pos+1:]
			case "opaque":
				a.authInfo.opaque = info[pos+1:]
			}
		}
	}
}

func (a *connectAttempt) doRespAcknowledgement() error {
	if a.peerWinAckSize <= 0 {
		return nil
	}
	conn := a.getConn()
	if conn == nil {
		return nil
	}
	currStat := conn.GetStat()
	delta := uint32(currStat.ReadBytesSum - a.recvLastAck)
	// 此次接收小于窗口大小一半，不处理
	if delta < uint32(a.peerWinAckSize/2) {
		return nil
	}
	a.recvLastAck = currStat.ReadBytesSum
	seqNum := a.seqNum + delta
	// 当序列号溢出时，将其重置
	if seqNum > 0xf0000000 {
		seqNum = delta
	}
	a.seqNum = seqNum
	// 时间戳暂时先发0
	return a.write(func(conn connection.Connection, packer *MessagePacker) error {
		return packer.writeAcknowledgement(conn, seqNum)
	})
}

// ----- 上层调用 ----------------------------------------------------------------------------------------------------------

func (a *connectAttempt) publish(streamName string) error {
	a.c.mu.Lock()
	streamId := a.streamId
	a.c.mu.Unlock()

	return a.write(func(conn connection.Connection, packer *MessagePacker) error {
		base.Log.Infof("[%s] > W releaseStream('%s').", a.uk(), streamName)
		if err := packer.writeReleaseStream(conn, streamName); err != nil {
			return err
		}
		base.Log.Infof("[%s] > W FCPublish('%s').", a.uk(), streamName)
		if err := packer.writeFcPublish(conn, streamName); err != nil {
			return err
		}
		base.Log.Infof("[%s] > W publish('%s').", a.uk(), streamName)
		if err := packer.writePublish(conn, streamName, streamId); err != nil {
			return err
		}
		a.publishName = streamName
		return nil
	})
}

func (a *connectAttempt) unpublish() error {
	a.c.mu.Lock()
	streamId := a.streamId
	a.c.mu.Unlock()

	return a.write(func(conn connection.Connection, packer *MessagePacker) error {
		name := a.publishName
		if name == "" {
			name = a.streamNameWithRawQuery()
		}
		base.Log.Infof("[%s] > W FCUnpublish('%s').", a.uk(), name)
		if err := packer.writeFcUnpublish(conn, name); err != nil {
			return err
		}
		base.Log.Infof("[%s] > W deleteStream(%d).", a.uk(), streamId)
		if err := packer.writeDeleteStream(conn, streamId); err != nil {
			return err
		}
		a.publishName = ""
		return nil
	})
}

func (a *connectAttempt) writeMsg(msg base.RtmpMsg) error {
	a.c.mu.Lock()
	streamId := a.streamId
	a.c.mu.Unlock()

	switch msg.Header.MsgTypeId {
	case base.RtmpTypeIdAudio:
		msg.Header.Csid = CsidAudio
	case base.RtmpTypeIdVideo:
		msg.Header.Csid = CsidVideo
	default:
		msg.Header.Csid = CsidAmf
	}
	msg.Header.MsgStreamId = streamId
	msg.Header.MsgLen = uint32(len(msg.Payload))

	return a.write(func(conn connection.Connection, packer *MessagePacker) error {
		_, err := conn.Write(packer.ChunkMsg(msg))
		return err
	})
}

// ---------------------------------------------------------------------------------------------------------------------

func (a *connectAttempt) write(fn func(conn connection.Connection, packer *MessagePacker) error) error {
	conn := a.getConn()
	if conn == nil {
		return base.ErrNotConnected
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return fn(conn, a.packer)
}

func (a *connectAttempt) getConn() connection.Connection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn
}

func (a *connectAttempt) isDisposed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disposed
}

// closeConn 鉴权重连前关闭上一个连接
func (a *connectAttempt) closeConn() {
	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// dispose 可重复调用，不等待读协程退出
func (a *connectAttempt) dispose() error {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return nil
	}
	a.disposed = true
	conn := a.conn
	a.mu.Unlock()

	base.Log.Debugf("[%s] dispose connect attempt. attempt=%d", a.uk(), a.id)
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (a *connectAttempt) appName() string {
	return a.urlCtx.PathWithoutLastItem
}

func (a *connectAttempt) tcUrl() string {
	return fmt.Sprintf("%s://%s/%s", a.urlCtx.Scheme, a.urlCtx.StdHost, a.urlCtx.PathWithoutLastItem)
}

func (a *connectAttempt) streamNameWithRawQuery() string {
	if a.urlCtx.RawQuery == "" {
		return a.urlCtx.LastItemOfPath
	}
	return fmt.Sprintf("%s?%s", a.urlCtx.LastItemOfPath, a.urlCtx.RawQuery)
}
