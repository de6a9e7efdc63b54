// Copyright 2026, Chef.  All rights reserved.
// https://github.com/q191201771/rtmppub
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/q191201771/naza/pkg/bitrate"
	"github.com/q191201771/naza/pkg/nazalog"
	"github.com/q191201771/rtmppub/pkg/base"
	"github.com/q191201771/rtmppub/pkg/broadcast"
	"github.com/q191201771/rtmppub/pkg/httpflv"
	"github.com/q191201771/rtmppub/pkg/rtmp"
	"golang.org/x/sync/errgroup"
)

// RTMP推流客户端，读取本地FLV文件，使用 broadcast.Session 推送出去
//
// 支持匀速推送：按照时间戳的间隔时间推送
// 支持循环推送：文件推送完毕后，可循环推送（RTMP push 流并不断开）
// 支持推送多路流：相当于一个RTMP推流压测工具
// 连接断开后，由 Session 内部按照配置周期性重连，重连次数用完后该路流退出
//
// Usage of ./bin/pushrtmp:
// -c string
// specify conf file (yaml)
// -i string
// specify flv file
// -n int
// num of push connection (default 1)
// -o string
// specify rtmp push url, override url in conf file
// -r	recursive push if reach end of file
// -l string
// specify log file
// -v	debug log
// Example:
// ./bin/pushrtmp -i testdata/test.flv -o rtmp://127.0.0.1:1935/live/test
// ./bin/pushrtmp -c conf/pushrtmp.conf.yaml -i testdata/test.flv -r
// ./bin/pushrtmp -i testdata/test.flv -o rtmp://127.0.0.1:1935/live/test_{i} -r -n 100

type flagOption struct {
	confFile    string
	filename    string
	urlTmpl     string
	num         int
	isRecursive bool
	logfile     string
	isDebug     bool
}

func main() {
	fo := parseFlag()
	initLog(fo)
	base.LogoutStartInfo()

	conf, err := loadConf(fo.confFile)
	if err != nil {
		base.Log.Errorf("load conf failed. err=%+v", err)
		os.Exit(1)
	}
	if fo.urlTmpl != "" {
		conf.Stream.Url = fo.urlTmpl
	}

	tags, err := httpflv.ReadAllTagsFromFlvFile(fo.filename)
	if err != nil {
		base.Log.Errorf("read flv file failed. file=%s, err=%+v", fo.filename, err)
		os.Exit(1)
	}
	base.Log.Infof("read all tag done. file=%s, tag num=%d", fo.filename, len(tags))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	br := newSafeBitrate()
	g, ctx := errgroup.WithContext(ctx)
	for i, url := range collect(conf.Stream.Url, fo.num) {
		streamConf := conf.Stream
		streamConf.Url = url
		index := i
		g.Go(func() error {
			return push(ctx, index, conf, streamConf, tags, fo.isRecursive, br)
		})
	}

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				base.Log.Debugf("bitrate=%.3fkbit/s", br.Rate())
			}
		}
	}()

	err = g.Wait()
	close(done)
	if err != nil {
		base.Log.Errorf("push exit. err=%+v", err)
		os.Exit(1)
	}
	base.Log.Info("bye.")
}

// push 单路推流，阻塞直到文件推完（非循环模式）、重连次数用完或者进程收到退出信号
func push(ctx context.Context, index int, conf *Conf, streamConf broadcast.StreamConfig, tags []httpflv.Tag, isRecursive bool, br *safeBitrate) error {
	session, err := broadcast.NewSession(streamConf, conf.ModSessionOption)
	if err != nil {
		return err
	}
	defer session.Close()

	observer := newPushObserver(session)
	session.SetObserver(observer)

	sources := []*httpflv.TagSource{
		newSource(tags, base.AvKindVideo, isRecursive),
		newSource(tags, base.AvKindAudio, isRecursive),
	}
	if err := session.AttachVideoSource(&countingSource{Source: sources[0], br: br}); err != nil {
		return err
	}
	if err := session.AttachAudioSource(&countingSource{Source: sources[1], br: br}); err != nil {
		return err
	}

	if err := session.Connect(ctx); err != nil {
		// 失败后 Session 内部会重连
		base.Log.Warnf("[%d] connect failed. url=%s, err=%+v", index, streamConf.Url, err)
	}

	pumpDone := make(chan struct{})
	go func() {
		for _, s := range sources {
			s.Wait()
		}
		close(pumpDone)
	}()

	tick := time.NewTicker(5 * time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pumpDone:
			base.Log.Infof("[%d] push file done. stat=%+v", index, session.Stat())
			return nil
		case err := <-observer.fatal:
			base.Log.Errorf("[%d] push failed. err=%+v", index, err)
			return nil
		case <-tick.C:
			session.UpdateStat(5)
			stat := session.Stat()
			base.Log.Infof("[%d] state=%s, sent=%d, dropped=%d, wrote=%d, bitrate=%dkbit/s",
				index, session.State().ReadableString(), stat.SentPackets, stat.DroppedPackets, stat.WroteBytesSum, stat.WriteBitrate)
		}
	}
}

// ---------------------------------------------------------------------------------------------------------------------

// pushObserver 连接成功（包括重连成功）后发送publish信令
type pushObserver struct {
	session *broadcast.Session
	fatal   chan error
}

func newPushObserver(session *broadcast.Session) *pushObserver {
	return &pushObserver{
		session: session,
		fatal:   make(chan error, 1),
	}
}

func (o *pushObserver) OnStatus(status broadcast.BroadcastStatus) {
	base.Log.Infof("[%s] status=%s", o.session.UniqueKey(), status.ReadableString())
	if status != broadcast.StatusReady {
		return
	}
	if err := o.session.Publish(""); err != nil {
		base.Log.Errorf("[%s] publish failed. err=%+v", o.session.UniqueKey(), err)
	}
}

func (o *pushObserver) OnError(err error) {
	base.Log.Warnf("[%s] error=%+v", o.session.UniqueKey(), err)
	if errors.Is(err, base.ErrReconnectExhausted) || errors.Is(err, base.ErrPublishRejected) {
		select {
		case o.fatal <- err:
		default:
		}
	}
}

// countingSource 统计推送的码率
type countingSource struct {
	rtmp.Source
	br *safeBitrate
}

func (s *countingSource) Start(onAvPacket rtmp.OnAvPacket) error {
	return s.Source.Start(func(pkt base.AvPacket) {
		s.br.Add(len(pkt.Payload))
		onAvPacket(pkt)
	})
}

type safeBitrate struct {
	mu sync.Mutex
	br bitrate.Bitrate
}

func newSafeBitrate() *safeBitrate {
	return &safeBitrate{br: bitrate.New()}
}

func (b *safeBitrate) Add(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.br.Add(n)
}

func (b *safeBitrate) Rate() float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.br.Rate()
}

func newSource(tags []httpflv.Tag, kind base.AvKind, isRecursive bool) *httpflv.TagSource {
	return httpflv.NewTagSource(tags, func(option *httpflv.TagSourceOption) {
		option.Kind = kind
		option.IsRecursive = isRecursive
	})
}

func collect(urlTmpl string, num int) (urls []string) {
	for i := 0; i < num; i++ {
		url := strings.Replace(urlTmpl, "{i}", strconv.Itoa(i), -1)
		urls = append(urls, url)
	}
	return
}

func initLog(fo flagOption) {
	l, err := nazalog.New(func(option *nazalog.Option) {
		option.Level = nazalog.LevelInfo
		if fo.isDebug {
			option.Level = nazalog.LevelDebug
		}
		if fo.logfile != "" {
			option.IsRotateDaily = false
			option.Filename = fo.logfile
			option.IsToStdout = false
		}
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "init nazalog failed. err=%+v", err)
		os.Exit(1)
	}
	base.Log = l
}

func parseFlag() flagOption {
	c := flag.String("c", "", "specify conf file (yaml)")
	i := flag.String("i", "", "specify flv file")
	o := flag.String("o", "", "specify rtmp push url, override url in conf file")
	r := flag.Bool("r", false, "recursive push if reach end of file")
	n := flag.Int("n", 1, "num of push connection")
	l := flag.String("l", "", "specify log file")
	v := flag.Bool("v", false, "debug log")
	flag.Parse()

	if *i == "" || (*o == "" && *c == "") {
		flag.Usage()
		_, _ = fmt.Fprintf(os.Stderr, `Example:
  ./bin/pushrtmp -i testdata/test.flv -o rtmp://127.0.0.1:1935/live/test
  ./bin/pushrtmp -c conf/pushrtmp.conf.yaml -i testdata/test.flv -r
  ./bin/pushrtmp -i testdata/test.flv -o rtmp://127.0.0.1:1935/live/test_{i} -r -n 100
`)
		os.Exit(1)
	}
	return flagOption{
		confFile:    *c,
		filename:    *i,
		urlTmpl:     *o,
		num:         *n,
		isRecursive: *r,
		logfile:     *l,
		isDebug:     *v,
	}
}
