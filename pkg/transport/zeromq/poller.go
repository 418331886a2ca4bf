package zeromq

import (
	"time"

	"github.com/FairRootGroup/fairmq-go/pkg/transport"
)

// poller implements transport.Poller by checking, on every pass, whether an
// input-capable target socket already holds a received message in its
// read-ahead buffer (Socket.pending). zmq4 has no native multi-socket
// poller, so Poll repeats that check every NativeShortTimeout, the same
// granularity the blocking sockets themselves use (§4.3), until a target is
// ready or the deadline passes. Output readiness is not probed:
// CheckOutput and CheckOutputNamed always report false.
type poller struct {
	targets []transport.PollTarget
	input   map[int]bool
	output  map[int]bool
	byName  map[string]int
}

func newPoller(targets ...transport.PollTarget) *poller {
	byName := make(map[string]int, len(targets))
	for i, tgt := range targets {
		byName[pollKey(tgt.Name(), tgt.SubIndex())] = i
	}
	return &poller{
		targets: targets,
		input:   make(map[int]bool, len(targets)),
		output:  make(map[int]bool, len(targets)),
		byName:  byName,
	}
}

func pollKey(name string, subIndex int) string {
	return name + "#" + string(rune('0'+subIndex))
}

func (p *poller) Poll(timeout time.Duration) error {
	deadline, cancel := deadlineChan(timeout)
	defer cancel()

	for i := range p.targets {
		p.input[i] = false
		p.output[i] = false
	}

	for {
		any := false
		for i, tgt := range p.targets {
			sock := tgt.Socket()
			if sock == nil {
				continue
			}
			zsock, ok := sock.(*Socket)
			if !ok {
				continue
			}
			switch sock.Kind() {
			case transport.Pull, transport.Subscribe, transport.Reply, transport.Pair, transport.Router, transport.XSub, transport.Dealer:
				if !p.input[i] && zsock.pending() {
					p.input[i] = true
					any = true
				}
			}
		}
		if any {
			return nil
		}
		select {
		case <-deadline:
			return nil
		case <-time.After(transport.NativeShortTimeout):
		}
	}
}

func (p *poller) CheckInput(idx int) bool  { return p.input[idx] }
func (p *poller) CheckOutput(idx int) bool { return p.output[idx] }

func (p *poller) CheckInputNamed(name string, subIndex int) bool {
	idx, ok := p.byName[pollKey(name, subIndex)]
	if !ok {
		return false
	}
	return p.input[idx]
}

func (p *poller) CheckOutputNamed(name string, subIndex int) bool {
	idx, ok := p.byName[pollKey(name, subIndex)]
	if !ok {
		return false
	}
	return p.output[idx]
}
