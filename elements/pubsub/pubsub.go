// Package pubsub bridges pipeline messages over an in-process Watermill
// pub/sub bus: pubsub-sink publishes every received payload to a topic, and
// pubsub-src emits everything published to one. The bus is shared by name,
// so several pipelines in one process can exchange data through it.
package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/plugflow/plugflow"
	"github.com/plugflow/plugflow/elements"
)

const (
	// SrcName registers the subscribing source element.
	SrcName = "pubsub-src"
	// SinkName registers the publishing sink element.
	SinkName = "pubsub-sink"
)

// closingPollInterval bounds how long a blocked pubsub-src takes to notice a
// pipeline close request.
const closingPollInterval = 100 * time.Millisecond

func init() {
	elements.Register(plugflow.Spec{
		Name:      SrcName,
		SendPorts: 1,
		New:       newSrc,
	})
	elements.Register(plugflow.Spec{
		Name:      SinkName,
		RecvPorts: 1,
		New:       newSink,
	})
}

// buses holds one gochannel pub/sub per bus name, created on first use.
var buses = struct {
	mu sync.Mutex
	m  map[string]*gochannel.GoChannel
}{m: make(map[string]*gochannel.GoChannel)}

func bus(name string) *gochannel.GoChannel {
	buses.mu.Lock()
	defer buses.mu.Unlock()
	b, ok := buses.m[name]
	if !ok {
		b = gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
		buses.m[name] = b
	}
	return b
}

type conf struct {
	// Bus names the shared in-process bus. Empty selects the default bus.
	Bus string `json:"bus"`
	// Topic to publish or subscribe to.
	Topic string `json:"topic"`
}

func decodeConf(raw []byte, element string) (conf, error) {
	c, err := plugflow.DecodeConf[conf](raw)
	if err != nil {
		return conf{}, err
	}
	if c.Topic == "" {
		return conf{}, fmt.Errorf("%s: topic is required", element)
	}
	return c, nil
}

type src struct {
	conf   conf
	cancel context.CancelFunc
	msgs   <-chan *message.Message
}

func newSrc(raw []byte) (plugflow.Element, error) {
	c, err := decodeConf(raw, SrcName)
	if err != nil {
		return nil, err
	}

	// Subscribed at construction time: every element of a pipeline is built
	// before any task steps, so nothing published through a pubsub-sink of
	// the same pipeline can be missed.
	subCtx, cancel := context.WithCancel(context.Background())
	msgs, err := bus(c.Bus).Subscribe(subCtx, c.Topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("pubsub-src: subscribing to %q: %w", c.Topic, err)
	}
	return &src{conf: c, cancel: cancel, msgs: msgs}, nil
}

func (s *src) Step(ctx *plugflow.Context, _ *plugflow.Receiver) (plugflow.Result, error) {
	for {
		select {
		case m, ok := <-s.msgs:
			if !ok {
				return plugflow.ResultClose, nil
			}
			buf, err := ctx.MsgBuf(0)
			if err != nil {
				m.Nack()
				return 0, err
			}
			buf.Write(m.Payload)
			m.Ack()
			return plugflow.ResultMsgBuf, nil
		case <-time.After(closingPollInterval):
			if ctx.Closing() {
				return plugflow.ResultClose, nil
			}
		}
	}
}

func (s *src) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

type sink struct {
	conf conf
	pub  message.Publisher
}

func newSink(raw []byte) (plugflow.Element, error) {
	c, err := decodeConf(raw, SinkName)
	if err != nil {
		return nil, err
	}
	return &sink{conf: c, pub: bus(c.Bus)}, nil
}

func (s *sink) Step(_ *plugflow.Context, recv *plugflow.Receiver) (plugflow.Result, error) {
	msg, ok := recv.Recv(0)
	if !ok {
		return plugflow.ResultClose, nil
	}

	payload := make([]byte, msg.Len())
	copy(payload, msg.Bytes())
	msg.Free()

	wm := message.NewMessage(watermill.NewUUID(), payload)
	if err := s.pub.Publish(s.conf.Topic, wm); err != nil {
		return 0, fmt.Errorf("pubsub-sink: publishing to %q: %w", s.conf.Topic, err)
	}
	return plugflow.ResultMsg, nil
}
