// Package tee provides a named in-process side channel: tee-filter copies
// every passing message into the channel while forwarding the original, and
// the paired tee-src emits the copies into another pipeline branch.
package tee

import (
	"fmt"
	"sync"

	"github.com/plugflow/plugflow"
	"github.com/plugflow/plugflow/elements"
)

const (
	// FilterName registers the copying filter element.
	FilterName = "tee-filter"
	// SrcName registers the paired source element.
	SrcName = "tee-src"
)

const defaultCapacity = 16

func init() {
	elements.Register(plugflow.Spec{
		Name:      FilterName,
		RecvPorts: 1,
		SendPorts: 1,
		New:       newFilter,
	})
	elements.Register(plugflow.Spec{
		Name:      SrcName,
		SendPorts: 1,
		New:       newSrc,
	})
}

// channels pairs filters with sources by name. An entry is claimed by at
// most one tee-src.
var channels = struct {
	mu sync.Mutex
	m  map[string]chan []byte
}{m: make(map[string]chan []byte)}

func registerChannel(name string, capacity int) (chan []byte, error) {
	channels.mu.Lock()
	defer channels.mu.Unlock()
	if _, ok := channels.m[name]; ok {
		return nil, fmt.Errorf("tee-filter: name duplication detected for %q", name)
	}
	ch := make(chan []byte, capacity)
	channels.m[name] = ch
	return ch, nil
}

func claimChannel(name string) (chan []byte, error) {
	channels.mu.Lock()
	defer channels.mu.Unlock()
	ch, ok := channels.m[name]
	if !ok {
		return nil, fmt.Errorf("tee-src: unknown tee name %q", name)
	}
	if ch == nil {
		return nil, fmt.Errorf("tee-src: name duplication detected for %q", name)
	}
	channels.m[name] = nil
	return ch, nil
}

func releaseChannel(name string) {
	channels.mu.Lock()
	delete(channels.m, name)
	channels.mu.Unlock()
}

type filterConf struct {
	// Name pairs this filter with a tee-src.
	Name string `json:"name"`
	// ChannelCapacity bounds the side channel. Zero means 16.
	ChannelCapacity int `json:"channel_capacity"`
}

type filter struct {
	name string
	ch   chan []byte
}

func newFilter(conf []byte) (plugflow.Element, error) {
	c, err := plugflow.DecodeConf[filterConf](conf)
	if err != nil {
		return nil, err
	}
	if c.Name == "" {
		return nil, fmt.Errorf("tee-filter: name is required")
	}
	if c.ChannelCapacity <= 0 {
		c.ChannelCapacity = defaultCapacity
	}
	ch, err := registerChannel(c.Name, c.ChannelCapacity)
	if err != nil {
		return nil, err
	}
	return &filter{name: c.Name, ch: ch}, nil
}

func (f *filter) Step(ctx *plugflow.Context, recv *plugflow.Receiver) (plugflow.Result, error) {
	msg, ok := recv.Recv(0)
	if !ok {
		return plugflow.ResultClose, nil
	}

	copied := make([]byte, msg.Len())
	copy(copied, msg.Bytes())
	f.ch <- copied

	if err := ctx.SetResultMsg(0, msg); err != nil {
		msg.Free()
		return 0, err
	}
	return plugflow.ResultMsg, nil
}

// Close unblocks the paired tee-src and frees the name for reuse.
func (f *filter) Close() error {
	close(f.ch)
	releaseChannel(f.name)
	return nil
}

type srcConf struct {
	// Name pairs this source with a tee-filter.
	Name string `json:"name"`
}

type src struct {
	name string
	ch   chan []byte
}

func newSrc(conf []byte) (plugflow.Element, error) {
	c, err := plugflow.DecodeConf[srcConf](conf)
	if err != nil {
		return nil, err
	}
	if c.Name == "" {
		return nil, fmt.Errorf("tee-src: name is required")
	}
	return &src{name: c.Name}, nil
}

func (s *src) Step(ctx *plugflow.Context, _ *plugflow.Receiver) (plugflow.Result, error) {
	if s.ch == nil {
		// Claimed lazily: every element of the pipeline, including the
		// paired tee-filter, is constructed before the first step runs.
		ch, err := claimChannel(s.name)
		if err != nil {
			return 0, err
		}
		s.ch = ch
	}

	payload, ok := <-s.ch
	if !ok {
		return plugflow.ResultClose, nil
	}

	buf, err := ctx.MsgBuf(0)
	if err != nil {
		return 0, err
	}
	buf.Write(payload)
	return plugflow.ResultMsgBuf, nil
}
