// Package wsnet implements a networked Transport over WebSocket connections:
// each node listens for inbound
// connections from peers and lazily dials peers it wants to send to,
// keeping one outbound connection open per peer.
package wsnet

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chrysalis/peer-sampling-service/pkg/transport"
)

// frameHeaderSize is tag byte (1) + sender rank (4, big-endian).
const frameHeaderSize = 1 + 4

// Transport is a Transport implementation backed by a static rank->address
// table and one WebSocket connection per peer communication direction.
type Transport struct {
	rank   int
	addrs  map[int]string // rank -> host:port, including this rank's own listen address
	logger zerolog.Logger

	connMu sync.Mutex
	conns  map[int]*outboundConn

	pushCh chan transport.Envelope
	pullCh chan transport.Envelope

	upgrader websocket.Upgrader
	server   *http.Server
}

type outboundConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

var _ transport.Transport = (*Transport)(nil)

// New creates a wsnet Transport for rank, given the full rank->address table
// (which must include an entry for rank itself, used as the listen
// address).
func New(rank int, addrs map[int]string, logger zerolog.Logger) *Transport {
	return &Transport{
		rank:     rank,
		addrs:    addrs,
		logger:   logger.With().Str("component", "wsnet").Int("rank", rank).Logger(),
		conns:    make(map[int]*outboundConn),
		pushCh:   make(chan transport.Envelope, 64),
		pullCh:   make(chan transport.Envelope, 64),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// ProcessCount returns the size of the cohort described by the address
// table.
func (t *Transport) ProcessCount() int {
	return len(t.addrs)
}

// OwnRank returns this node's rank.
func (t *Transport) OwnRank() int {
	return t.rank
}

// ListenAndServe starts the inbound WebSocket listener on this rank's
// configured address and blocks until ctx is cancelled or the server
// fails. Run it in its own goroutine.
func (t *Transport) ListenAndServe(ctx context.Context) error {
	addr, ok := t.addrs[t.rank]
	if !ok {
		return fmt.Errorf("wsnet: no listen address configured for rank %d", t.rank)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/gossip", t.handleInbound)
	t.server = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info().Str("addr", addr).Msg("listening for peers")
		errCh <- t.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = t.server.Close()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (t *Transport) handleInbound(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage || len(data) < frameHeaderSize {
			t.logger.Warn().Int("len", len(data)).Msg("dropping malformed frame")
			continue
		}

		tag := transport.Tag(data[0])
		sender := int(binary.BigEndian.Uint32(data[1:5]))
		payload := append([]byte(nil), data[frameHeaderSize:]...)
		env := transport.Envelope{Sender: sender, Tag: tag, Payload: payload}

		switch tag {
		case transport.TagPush:
			t.pushCh <- env
		case transport.TagPull:
			t.pullCh <- env
		default:
			t.logger.Warn().Int("tag", int(tag)).Msg("dropping frame with unknown tag")
		}
	}
}

func (t *Transport) dial(peer int) (*outboundConn, error) {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if oc, ok := t.conns[peer]; ok {
		return oc, nil
	}

	addr, ok := t.addrs[peer]
	if !ok {
		return nil, fmt.Errorf("wsnet: no address configured for peer %d", peer)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/gossip", nil)
	if err != nil {
		return nil, fmt.Errorf("wsnet: dial peer %d: %w", peer, err)
	}
	oc := &outboundConn{conn: conn}
	t.conns[peer] = oc
	return oc, nil
}

// SendAsync frames payload with tag and this node's rank, then writes it to
// peer's connection in a goroutine so the call itself does not block on
// delivery.
func (t *Transport) SendAsync(ctx context.Context, peer int, tag transport.Tag, payload []byte) error {
	oc, err := t.dial(peer)
	if err != nil {
		return err
	}

	frame := make([]byte, frameHeaderSize+len(payload))
	frame[0] = byte(tag)
	binary.BigEndian.PutUint32(frame[1:5], uint32(t.rank))
	copy(frame[frameHeaderSize:], payload)

	go func() {
		oc.mu.Lock()
		defer oc.mu.Unlock()
		if err := oc.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			t.logger.Warn().Err(err).Int("peer", peer).Msg("send failed")
			t.connMu.Lock()
			delete(t.conns, peer)
			t.connMu.Unlock()
		}
	}()
	return nil
}

// RecvBlocking blocks until a message tagged tag arrives from any peer.
func (t *Transport) RecvBlocking(ctx context.Context, tag transport.Tag) (transport.Envelope, error) {
	var ch chan transport.Envelope
	switch tag {
	case transport.TagPush:
		ch = t.pushCh
	case transport.TagPull:
		ch = t.pullCh
	default:
		return transport.Envelope{}, fmt.Errorf("wsnet: unknown tag %v", tag)
	}

	select {
	case env := <-ch:
		return env, nil
	case <-ctx.Done():
		return transport.Envelope{}, ctx.Err()
	}
}

// Abort terminates the process, matching the environmental-fatal-error
// propagation policy in SPEC_FULL.md §7. Unlike the simulated memory
// transport, wsnet runs as its own OS process, so there is nothing else to
// hand the failure to.
func (t *Transport) Abort(code int) {
	t.logger.WithLevel(zerolog.FatalLevel).Int("code", code).Msg("aborting")
	os.Exit(code)
}
