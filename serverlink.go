/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package meshd

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PeerState is the server-to-server connect state machine (non-blocking
// dial through registration).
type PeerState uint8

const (
	PeerConnecting PeerState = iota
	PeerTLSHandshaking
	PeerHandshake
	PeerRegistered
	PeerDead
)

func (s PeerState) String() string {
	switch s {
	case PeerConnecting:
		return "CONNECTING"
	case PeerTLSHandshaking:
		return "TLS_HANDSHAKING"
	case PeerHandshake:
		return "HANDSHAKE"
	case PeerRegistered:
		return "REGISTERED"
	case PeerDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// ConnectBlock is the static configuration for one potential peer
// link: address to dial, autoconnect policy, and TLS requirement.
type ConnectBlock struct {
	Name        string
	Address     string
	Port        int
	Password    string
	TLS         bool
	AutoConnect bool
	HoldTime    time.Duration
}

// Peer represents one server-to-server link, local or remote,
// carrying both its static configuration and its live connect state.
type Peer struct {
	sync.RWMutex

	name string
	conn net.Conn

	state       PeerState
	attemptID   uuid.UUID
	connectedAt time.Time
	lastAttempt time.Time

	block ConnectBlock

	// inbound is true for a peer accepted on the listen socket rather
	// than dialed via Connect; its name and connect block are unknown
	// until the SERVER line of its handshake arrives.
	inbound     bool
	pendingPass string

	writeQueue chan *bytes.Buffer
	kill       chan bool

	user *User // the *User representing this peer in the client/server tables
}

// NewPeer returns a Peer in the Connecting state for the given
// connect block, tagging the attempt with a fresh id that the
// connect-failure log line carries, so each attempt in a retry
// sequence can be told apart in the logs.
func NewPeer(block ConnectBlock) *Peer {
	return &Peer{
		name:       block.Name,
		block:      block,
		state:      PeerConnecting,
		attemptID:  uuid.New(),
		writeQueue: make(chan *bytes.Buffer, WriteQueueLength),
		kill:       make(chan bool, 1),
	}
}

// Name returns the peer's configured server name.
func (p *Peer) Name() string {
	p.RLock()
	defer p.RUnlock()
	return p.name
}

// State returns the peer's current connect-FSM state.
func (p *Peer) State() PeerState {
	p.RLock()
	defer p.RUnlock()
	return p.state
}

// setState transitions the peer to a new state. Dead is terminal;
// once set, further transitions are ignored so a late callback from
// an abandoned dial can't resurrect a peer that moved on.
func (p *Peer) setState(s PeerState) {
	p.Lock()
	defer p.Unlock()
	if p.state == PeerDead {
		return
	}
	p.state = s
}

// Write enqueues a rendered message buffer for delivery to the peer,
// mirroring Conn.Write's hand-off to a dedicated write goroutine.
func (p *Peer) Write(buf *bytes.Buffer) {
	if p.State() != PeerRegistered && p.State() != PeerHandshake {
		return
	}
	select {
	case p.writeQueue <- buf:
	default:
		log.Warnf("irc: sendq exceeded for peer [%s], dropping link", p.name)
		p.Dead()
	}
}

// Dead marks the peer as gone and signals its goroutines to exit.
func (p *Peer) Dead() {
	p.setState(PeerDead)
	select {
	case p.kill <- true:
	default:
	}
}

// writeLoop drains the peer's send queue to its socket, mirroring
// Conn.writeLoop. It exits on kill.
func (p *Peer) writeLoop() {
	for {
		select {
		case <-p.kill:
			return
		case buf := <-p.writeQueue:
			p.RLock()
			conn := p.conn
			p.RUnlock()
			if conn == nil {
				bufpool.Recycle(buf)
				continue
			}
			if _, err := conn.Write(buf.Bytes()); err != nil {
				log.Errorf("irc: write error to peer [%s]: %s", p.name, err)
				bufpool.Recycle(buf)
				p.Dead()
				return
			}
			bufpool.Recycle(buf)
		}
	}
}

// readLoop scans CRLF-terminated lines off the peer socket, parses
// them with ParseServer (which, unlike Parse, accepts the leading
// ":prefix" peer links use), and dispatches each to handlePeerMessage.
// It exits when the socket errors or the peer is marked dead.
func (p *Peer) readLoop(server *Server) {
	p.RLock()
	conn := p.conn
	p.RUnlock()
	if conn == nil {
		return
	}

	p.readLoopFrom(server, conn)
}

// readLoopFrom is the shared scan-parse-dispatch body behind readLoop.
// It takes an explicit io.Reader rather than always reading from
// p.conn so the inbound accept path (acceptPeer) can resume reading
// from the buffered reader used to sniff the first protocol line,
// instead of losing whatever it had already buffered beyond that
// line by re-wrapping the raw socket.
func (p *Peer) readLoopFrom(server *Server, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		msg, err := ParseServer(line)
		if err != nil {
			log.Warnf("irc: malformed line from peer [%s]: %s", p.name, err)
			continue
		}

		handlePeerMessage(server, p, msg)
		msgpool.Recycle(msg)

		if p.State() == PeerDead {
			break
		}
	}

	log.Debugf("irc: readLoop exited for peer [%s]", p.name)
	name := p.Name()
	p.Dead()
	if name != "" {
		server.Peers.Del(name)
	}
}

// PeerMap is a concurrency-safe map[string]*Peer, indexed by peer
// server name.
type PeerMap struct {
	mu   sync.RWMutex
	data map[string]*Peer
}

// NewPeerMap initializes and returns a pointer to a new PeerMap instance.
func NewPeerMap() *PeerMap {
	return &PeerMap{data: make(map[string]*Peer)}
}

// ForEach will call the provided function for each entry in the PeerMap.
func (m *PeerMap) ForEach(do func(*Peer)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.data {
		do(v)
	}
}

// Length returns the length of the underlying map.
func (m *PeerMap) Length() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Add is used to add a key/value to the map.
// Returns an error if the key already exists.
func (m *PeerMap) Add(key string, value *Peer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[key]; exists {
		return fmt.Errorf("PeerMap: cannot add map entry, key already exists: %q", key)
	}
	m.data[key] = value
	return nil
}

// Del is used to remove a key/value from the map.
func (m *PeerMap) Del(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

// Get is used to get a key/value from the map.
// Returns an error if the key does not exist.
func (m *PeerMap) Get(key string) (*Peer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, exists := m.data[key]
	if !exists {
		return nil, fmt.Errorf("PeerMap: cannot get map value, key does not exist: %q", key)
	}
	return v, nil
}

// Exists is used by external callers to check if a value
// exists in the map and returns a boolean with the result.
func (m *PeerMap) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.data[key]
	return exists
}

// Connect begins a non-blocking outbound connect attempt to the peer
// described by block. DNS resolution and the TCP dial happen on a
// background goroutine; the returned Peer is visible in Connecting
// state immediately so duplicate connect attempts can be rejected
// by the caller (ErrAlreadyConnecting).
func (server *Server) Connect(block ConnectBlock) (*Peer, error) {
	if server.Peers.Exists(block.Name) {
		return nil, ErrAlreadyConnecting
	}

	peer := NewPeer(block)
	if err := server.Peers.Add(block.Name, peer); err != nil {
		return nil, ErrAlreadyConnecting
	}

	go server.dialPeer(peer)

	return peer, nil
}

func (server *Server) dialPeer(peer *Peer) {
	addr := fmt.Sprintf("%s:%d", peer.block.Address, peer.block.Port)

	dialer := net.Dialer{Timeout: 30 * time.Second}
	conn, err := dialer.Dial("tcp4", addr)
	if err != nil {
		log.Errorf("irc: Connect attempt [%s] to peer [%s] failed: %s", peer.attemptID, peer.name, err)
		peer.Dead()
		server.Peers.Del(peer.name)
		return
	}

	peer.Lock()
	peer.conn = conn
	peer.lastAttempt = time.Now()
	peer.Unlock()

	if peer.block.TLS {
		peer.setState(PeerTLSHandshaking)
		tlsConn := tls.Client(conn, cloneTLSConfig(server.TLSConfig))
		if err := tlsConn.Handshake(); err != nil {
			log.Errorf("irc: TLS handshake failed for peer [%s]: %s", peer.name, err)
			peer.Dead()
			server.Peers.Del(peer.name)
			return
		}
		peer.Lock()
		peer.conn = tlsConn
		peer.Unlock()
	}

	go peer.writeLoop()
	go peer.readLoop(server)

	peer.setState(PeerHandshake)
	server.sendHandshake(peer)
}

// sendHandshake writes the PASS and SERVER lines that begin peer
// registration; no CAPAB line is sent, and SERVER carries only the
// server name and hop count. The peer moves to Registered in
// handlePeerServer, on the first SERVER or SVINFO line it sends back.
func (server *Server) sendHandshake(peer *Peer) {
	pass := server.newMessage()
	pass.Command = CmdPass
	pass.Params = []string{peer.block.Password}
	peer.Write(pass.RenderBuffer())
	msgpool.Recycle(pass)

	srv := server.newMessage()
	srv.Command = CmdServer
	srv.Params = []string{server.Hostname(), "1"}
	peer.Write(srv.RenderBuffer())
	msgpool.Recycle(srv)
}

// newMessage returns a pooled Message pre-stamped with the server's
// own name as sender, mirroring Conn.newMessage for peer-originated
// traffic that has no client connection to hang it off of.
func (server *Server) newMessage() *Message {
	msg := msgpool.New()
	msg.Sender = server.Hostname()
	return msg
}

// StartAutoconnect launches a background scheduler that periodically
// attempts to establish links for every autoconnect-enabled block
// that isn't already connected, honoring each block's hold time
// between attempts. It also registers every block with the server so
// an inbound connection from one of these peers can authenticate its
// handshake, even for blocks with AutoConnect disabled.
func StartAutoconnect(server *Server, blocks []ConnectBlock, interval time.Duration) {
	server.SetConnectBlocks(blocks)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastTry := make(map[string]time.Time)

		for range ticker.C {
			for _, block := range blocks {
				if !block.AutoConnect {
					continue
				}
				if server.Peers.Exists(block.Name) {
					continue
				}
				if block.HoldTime > 0 && time.Since(lastTry[block.Name]) < block.HoldTime {
					continue
				}
				lastTry[block.Name] = time.Now()
				if _, err := server.Connect(block); err != nil {
					log.Debugf("irc: autoconnect skipped for [%s]: %s", block.Name, err)
				}
			}
		}
	}()
}
