package netproto

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Dastari/sidereal-v3/infrastructure/logging"
)

const (
	inboundQueueSize     = 4096
	maxDatagramBytes     = 64 * 1024
	reliableResendEvery  = 250 * time.Millisecond
	reliableMaxAttempts  = 8
	defaultChannelNeeded = ChannelControl
)

// Datagram is one decoded inbound envelope with its transport peer address
type Datagram struct {
	Remote *net.UDPAddr
	Env    Envelope
}

// Endpoint is a bidirectional datagram endpoint multiplexing the three
// logical channels over one UDP socket. A background goroutine reads the
// socket and enqueues decoded envelopes; the owning loop drains them with
// Poll at tick boundaries. Control-channel sends are reliable-unordered via
// ack and bounded resend; input and state sends are fire-and-forget.
type Endpoint struct {
	conn *net.UDPConn
	log  *logging.Logger

	inbound chan Datagram
	closed  chan struct{}

	mu      sync.Mutex
	nextSeq uint64
	pending map[uint64]chan struct{}

	// Dropped is invoked with a reason for every discarded datagram
	Dropped func(reason string)
}

// Listen binds a UDP endpoint and starts its read loop
func Listen(bind string, log *logging.Logger) (*Endpoint, error) {
	addr, err := net.ResolveUDPAddr("udp", bind)
	if err != nil {
		return nil, fmt.Errorf("resolve udp bind %q: %w", bind, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind udp %q: %w", bind, err)
	}
	e := &Endpoint{
		conn:    conn,
		log:     log,
		inbound: make(chan Datagram, inboundQueueSize),
		closed:  make(chan struct{}),
		pending: make(map[uint64]chan struct{}),
	}
	go e.readLoop()
	return e, nil
}

// LocalAddr returns the bound socket address
func (e *Endpoint) LocalAddr() *net.UDPAddr {
	return e.conn.LocalAddr().(*net.UDPAddr)
}

// Close stops the read loop and closes the socket
func (e *Endpoint) Close() error {
	select {
	case <-e.closed:
		return nil
	default:
	}
	close(e.closed)
	return e.conn.Close()
}

func (e *Endpoint) drop(reason string, err error) {
	if err != nil {
		e.log.WithError(err).WithField("reason", reason).Warn("dropping datagram")
	}
	if e.Dropped != nil {
		e.Dropped(reason)
	}
}

func (e *Endpoint) readLoop() {
	buf := make([]byte, maxDatagramBytes)
	for {
		n, remote, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-e.closed:
				return
			default:
				e.log.WithError(err).Warn("udp read error")
				continue
			}
		}

		env, err := DecodeEnvelope(buf[:n])
		if err != nil {
			e.drop("decode", err)
			continue
		}

		if env.Kind == KindAck {
			e.resolveAck(env.Seq)
			continue
		}
		if env.NeedsAck {
			e.sendAck(remote, env.Seq)
		}

		select {
		case e.inbound <- Datagram{Remote: remote, Env: env}:
		default:
			e.drop("queue_full", nil)
		}
	}
}

// Poll drains up to max inbound datagrams without blocking. Pass max <= 0
// for all currently queued.
func (e *Endpoint) Poll(max int) []Datagram {
	var out []Datagram
	for {
		select {
		case d := <-e.inbound:
			out = append(out, d)
			if max > 0 && len(out) >= max {
				return out
			}
		default:
			return out
		}
	}
}

func (e *Endpoint) allocSeq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSeq++
	return e.nextSeq
}

func (e *Endpoint) sendEnvelope(remote *net.UDPAddr, env Envelope) error {
	data, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	_, err = e.conn.WriteToUDP(data, remote)
	return err
}

func (e *Endpoint) sendAck(remote *net.UDPAddr, seq uint64) {
	ack := Envelope{
		ProtocolVersion: ProtocolVersion,
		Channel:         ChannelControl,
		Kind:            KindAck,
		Seq:             seq,
	}
	if err := e.sendEnvelope(remote, ack); err != nil {
		e.log.WithError(err).Warn("failed sending control ack")
	}
}

func (e *Endpoint) resolveAck(seq uint64) {
	e.mu.Lock()
	done, ok := e.pending[seq]
	if ok {
		delete(e.pending, seq)
	}
	e.mu.Unlock()
	if ok {
		close(done)
	}
}

// Send transmits one unreliable envelope on the given channel. Channel sends
// never block the caller.
func (e *Endpoint) Send(remote *net.UDPAddr, channel Channel, kind string, tick uint64, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}
	env := Envelope{
		ProtocolVersion: ProtocolVersion,
		Channel:         channel,
		Kind:            kind,
		Seq:             e.allocSeq(),
		Tick:            tick,
		Payload:         raw,
	}
	return e.sendEnvelope(remote, env)
}

// SendReliable transmits a control-channel envelope with ack-based
// reliability: the datagram is resent on an interval until acked or the
// attempt budget is exhausted. Returns true when the peer acknowledged.
func (e *Endpoint) SendReliable(remote *net.UDPAddr, kind string, tick uint64, payload interface{}) (bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	seq := e.allocSeq()
	env := Envelope{
		ProtocolVersion: ProtocolVersion,
		Channel:         defaultChannelNeeded,
		Kind:            kind,
		Seq:             seq,
		Tick:            tick,
		NeedsAck:        true,
		Payload:         raw,
	}

	done := make(chan struct{})
	e.mu.Lock()
	e.pending[seq] = done
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.pending, seq)
		e.mu.Unlock()
	}()

	for attempt := 0; attempt < reliableMaxAttempts; attempt++ {
		if err := e.sendEnvelope(remote, env); err != nil {
			return false, err
		}
		select {
		case <-done:
			return true, nil
		case <-e.closed:
			return false, fmt.Errorf("endpoint closed")
		case <-time.After(reliableResendEvery):
		}
	}
	return false, nil
}
