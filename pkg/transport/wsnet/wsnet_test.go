package wsnet

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrysalis/peer-sampling-service/pkg/transport"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a free port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestSendRecvRoundTripOverSockets(t *testing.T) {
	addrs := map[int]string{0: freeAddr(t), 1: freeAddr(t)}
	logger := zerolog.Nop()

	a := New(0, addrs, logger)
	b := New(1, addrs, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.ListenAndServe(ctx)
	go b.ListenAndServe(ctx)
	time.Sleep(50 * time.Millisecond) // allow both listeners to come up

	sendCtx, sendCancel := context.WithTimeout(context.Background(), time.Second)
	defer sendCancel()
	if err := a.SendAsync(sendCtx, 1, transport.TagPush, []byte("hello-wsnet")); err != nil {
		t.Fatalf("SendAsync failed: %v", err)
	}

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()
	env, err := b.RecvBlocking(recvCtx, transport.TagPush)
	if err != nil {
		t.Fatalf("RecvBlocking failed: %v", err)
	}
	if env.Sender != 0 || string(env.Payload) != "hello-wsnet" {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestTagsAreIsolatedOverSockets(t *testing.T) {
	addrs := map[int]string{0: freeAddr(t), 1: freeAddr(t)}
	logger := zerolog.Nop()

	a := New(0, addrs, logger)
	b := New(1, addrs, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.ListenAndServe(ctx)
	go b.ListenAndServe(ctx)
	time.Sleep(50 * time.Millisecond)

	sendCtx, sendCancel := context.WithTimeout(context.Background(), time.Second)
	defer sendCancel()
	if err := a.SendAsync(sendCtx, 1, transport.TagPull, []byte("pull-data")); err != nil {
		t.Fatalf("SendAsync failed: %v", err)
	}

	pushCtx, pushCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer pushCancel()
	if _, err := b.RecvBlocking(pushCtx, transport.TagPush); err == nil {
		t.Error("expected a push receive to not observe a pull-tagged message")
	}

	pullCtx, pullCancel := context.WithTimeout(context.Background(), time.Second)
	defer pullCancel()
	env, err := b.RecvBlocking(pullCtx, transport.TagPull)
	if err != nil {
		t.Fatalf("expected the pull receive to succeed: %v", err)
	}
	if string(env.Payload) != "pull-data" {
		t.Errorf("unexpected payload: %q", env.Payload)
	}
}

func TestSendAsyncUnknownPeerErrors(t *testing.T) {
	addrs := map[int]string{0: freeAddr(t)}
	a := New(0, addrs, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.SendAsync(ctx, 7, transport.TagPush, []byte("x")); err == nil {
		t.Error("expected an error sending to an unconfigured peer")
	}
}
