package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrysalis/peer-sampling-service/pkg/gossip"
	"github.com/chrysalis/peer-sampling-service/pkg/metrics"
	"github.com/chrysalis/peer-sampling-service/pkg/sendgov"
	"github.com/chrysalis/peer-sampling-service/pkg/transport/memory"
	"github.com/chrysalis/peer-sampling-service/pkg/view"
	"github.com/chrysalis/peer-sampling-service/pkg/wire"
)

func TestCohortConvergesViewSizes(t *testing.T) {
	const n = 6
	config := gossip.Config{C: 4, H: 1, S: 1, Delta: 5 * time.Millisecond, PushEnabled: true, PullEnabled: true}
	codec := wire.NewCodec(config.C)
	cohort := memory.NewCohort(n)

	services := make([]*Service, n)
	for rank := 0; rank < n; rank++ {
		seed := make([]int, 0, n-1)
		for peer := 0; peer < n; peer++ {
			if peer != rank {
				seed = append(seed, peer)
			}
		}
		v := view.NewSeeded(int64(rank) + 1)
		v.Init(seed)
		v.RemoveAtRandom(v.Size() - config.C) // start each view already trimmed to C

		protocol := gossip.New(config, rank, v)
		governor := sendgov.New(sendgov.DefaultConfig())
		m := metrics.New()

		services[rank] = New(protocol, cohort.Endpoint(rank), codec, governor, m, zerolog.Nop(), Options{})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	for _, s := range services {
		s.Start(ctx)
	}
	<-ctx.Done()
	for _, s := range services {
		s.Stop()
	}

	for rank, s := range services {
		size := s.protocol.View().Size()
		if size <= 0 || size > config.C {
			t.Errorf("rank %d: view size %d out of bounds (0, %d]", rank, size, config.C)
		}
	}
}

func TestActiveRoundSkipsWithoutPeers(t *testing.T) {
	config := gossip.Config{C: 4, H: 1, S: 1, Delta: time.Millisecond, PushEnabled: true, PullEnabled: true}
	v := view.NewSeeded(1)
	protocol := gossip.New(config, 0, v)
	codec := wire.NewCodec(config.C)
	governor := sendgov.New(sendgov.DefaultConfig())
	m := metrics.New()
	cohort := memory.NewCohort(1)

	s := New(protocol, cohort.Endpoint(0), codec, governor, m, zerolog.Nop(), Options{})

	done := make(chan struct{})
	go func() {
		s.doActiveRound(config)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("doActiveRound should return promptly when the view is empty")
	}
}
