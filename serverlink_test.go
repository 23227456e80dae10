/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package meshd

import (
	"bytes"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain gives the package logger a discard-output instance so the
// handshake-rejection paths under test (which log.Warnf on failure)
// don't panic against the nil *logrus.Logger these tests would
// otherwise run with, since none of this file's tests go through
// Warmup.
func TestMain(m *testing.M) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	log = logger
	m.Run()
}

func newTestServerForLink() *Server {
	server := NewServer()
	server.SetHostname("irc.example.org")
	return server
}

func newInboundTestPeer() *Peer {
	return &Peer{
		state:      PeerHandshake,
		inbound:    true,
		writeQueue: make(chan *bytes.Buffer, 4),
		kill:       make(chan bool, 1),
	}
}

func TestAcceptSocketClassifiesPeerVsClientLines(t *testing.T) {
	peerMsg, err := ParseServer("PASS secret TS 6 :001")
	require.NoError(t, err)
	assert.Equal(t, CmdPass, peerMsg.Command)

	serverMsg, err := ParseServer(":leaf.example.org SERVER leaf.example.org 1 :leaf server")
	require.NoError(t, err)
	assert.Equal(t, CmdServer, serverMsg.Command)

	clientMsg, err := ParseServer("NICK alice")
	require.NoError(t, err)
	assert.NotEqual(t, CmdPass, clientMsg.Command)
	assert.NotEqual(t, CmdServer, clientMsg.Command)
}

func TestHandlePeerServerInboundRejectsUnknownBlock(t *testing.T) {
	server := newTestServerForLink()
	peer := newInboundTestPeer()

	msg := &Message{Command: CmdServer, Params: []string{"leaf.example.org", "1"}}
	handlePeerServer(server, peer, msg)

	assert.Equal(t, PeerDead, peer.State())
	assert.False(t, server.Peers.Exists("leaf.example.org"))
}

func TestHandlePeerServerInboundRejectsBadPassword(t *testing.T) {
	server := newTestServerForLink()
	server.SetConnectBlocks([]ConnectBlock{
		{Name: "leaf.example.org", Address: "127.0.0.1", Port: 6668, Password: "correct"},
	})

	peer := newInboundTestPeer()
	peer.pendingPass = "wrong"

	msg := &Message{Command: CmdServer, Params: []string{"leaf.example.org", "1"}}
	handlePeerServer(server, peer, msg)

	assert.Equal(t, PeerDead, peer.State())
	assert.False(t, server.Peers.Exists("leaf.example.org"))
}

func TestHandlePeerServerInboundAcceptsMatchingBlock(t *testing.T) {
	server := newTestServerForLink()
	server.SetConnectBlocks([]ConnectBlock{
		{Name: "leaf.example.org", Address: "127.0.0.1", Port: 6668, Password: "correct"},
	})

	peer := newInboundTestPeer()
	peer.pendingPass = "correct"

	msg := &Message{Command: CmdServer, Params: []string{"leaf.example.org", "1"}}
	handlePeerServer(server, peer, msg)

	assert.Equal(t, PeerRegistered, peer.State())
	assert.True(t, server.Peers.Exists("leaf.example.org"))
	assert.Equal(t, "leaf.example.org", peer.Name())
}

func TestHandlePeerServerInboundNoPasswordRequired(t *testing.T) {
	server := newTestServerForLink()
	server.SetConnectBlocks([]ConnectBlock{
		{Name: "leaf.example.org", Address: "127.0.0.1", Port: 6668},
	})

	peer := newInboundTestPeer()

	msg := &Message{Command: CmdServer, Params: []string{"leaf.example.org", "1"}}
	handlePeerServer(server, peer, msg)

	assert.Equal(t, PeerRegistered, peer.State())
	assert.True(t, server.Peers.Exists("leaf.example.org"))
}

func TestHandlePeerServerInboundRejectsDuplicateName(t *testing.T) {
	server := newTestServerForLink()
	server.SetConnectBlocks([]ConnectBlock{
		{Name: "leaf.example.org", Address: "127.0.0.1", Port: 6668},
	})

	existing := newInboundTestPeer()
	existing.name = "leaf.example.org"
	existing.setState(PeerRegistered)
	require.NoError(t, server.Peers.Add("leaf.example.org", existing))

	peer := newInboundTestPeer()
	msg := &Message{Command: CmdServer, Params: []string{"leaf.example.org", "1"}}
	handlePeerServer(server, peer, msg)

	assert.Equal(t, PeerDead, peer.State())
}

func TestPassThenServerInboundSequence(t *testing.T) {
	server := newTestServerForLink()
	server.SetConnectBlocks([]ConnectBlock{
		{Name: "leaf.example.org", Address: "127.0.0.1", Port: 6668, Password: "correct"},
	})

	peer := newInboundTestPeer()

	passMsg := &Message{Command: CmdPass, Params: []string{"correct"}}
	handlePeerMessage(server, peer, passMsg)
	assert.Equal(t, "correct", peer.pendingPass)

	serverMsg := &Message{Command: CmdServer, Params: []string{"leaf.example.org", "1"}}
	handlePeerMessage(server, peer, serverMsg)

	assert.Equal(t, PeerRegistered, peer.State())
	assert.True(t, server.Peers.Exists("leaf.example.org"))
}
