// Package service runs the peer sampling engine as three concurrent
// goroutines bound by a shared context and WaitGroup: one active-round
// ticker plus one always-running receive loop per reactive tag.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrysalis/peer-sampling-service/pkg/gossip"
	"github.com/chrysalis/peer-sampling-service/pkg/metrics"
	"github.com/chrysalis/peer-sampling-service/pkg/sendgov"
	"github.com/chrysalis/peer-sampling-service/pkg/transport"
	"github.com/chrysalis/peer-sampling-service/pkg/view"
	"github.com/chrysalis/peer-sampling-service/pkg/wire"
)

// Options configures behavior that sits above the gossip protocol itself.
type Options struct {
	// Diagnostics, when true, logs the full view of rank 0 once per active
	// round, matching the reference cohort's stdout dump.
	Diagnostics bool
}

// Service wires a gossip.Protocol to a transport.Transport, governing
// outbound sends and recording metrics along the way.
type Service struct {
	protocol  *gossip.Protocol
	transport transport.Transport
	codec     wire.Codec
	governor  *sendgov.Governor
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	options   Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Service. codec must be sized for the same cohort config as
// protocol.
func New(
	protocol *gossip.Protocol,
	tr transport.Transport,
	codec wire.Codec,
	governor *sendgov.Governor,
	m *metrics.Metrics,
	logger zerolog.Logger,
	options Options,
) *Service {
	return &Service{
		protocol:  protocol,
		transport: tr,
		codec:     codec,
		governor:  governor,
		metrics:   m,
		logger:    logger.With().Str("component", "service").Int("rank", tr.OwnRank()).Logger(),
		options:   options,
	}
}

// View returns the underlying gossip view, primarily for diagnostics and
// tests.
func (s *Service) View() *view.View {
	return s.protocol.View()
}

// Start launches the active round ticker and the push/pull receive loops.
// It returns immediately; call Stop to shut them down.
func (s *Service) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(3)
	go s.activeLoop()
	go s.receiveLoop(transport.TagPush)
	go s.receiveLoop(transport.TagPull)

	s.logger.Info().Msg("peer sampling service started")
}

// Stop cancels all running goroutines and waits for them to exit.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info().Msg("peer sampling service stopped")
}

func (s *Service) activeLoop() {
	defer s.wg.Done()

	config := s.protocol.Config()
	ticker := time.NewTicker(config.Delta)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.doActiveRound(config)
		}
	}
}

func (s *Service) doActiveRound(config gossip.Config) {
	start := time.Now()
	s.metrics.ActiveRoundsTotal.Inc()
	defer func() { s.metrics.RoundDuration.Observe(time.Since(start).Seconds()) }()

	gossipView := s.protocol.View()
	s.metrics.ViewSize.Set(float64(gossipView.Size()))

	if s.options.Diagnostics && s.transport.OwnRank() == 0 {
		logDiagnostics(s.logger, gossipView.Snapshot())
	}

	defer gossipView.IncreaseAge()

	if !config.PushEnabled {
		return
	}

	peer, err := s.protocol.SelectPeer()
	if err != nil {
		s.logger.Debug().Err(err).Msg("no peer available for this round")
		return
	}

	buffer := s.protocol.ToSend()
	payload, err := s.codec.Pack(wire.Message{Sender: s.transport.OwnRank(), Buffer: buffer})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to pack outgoing buffer")
		return
	}

	s.dispatch(peer, transport.TagPush, payload)
}

func (s *Service) receiveLoop(tag transport.Tag) {
	defer s.wg.Done()

	for {
		env, err := s.transport.RecvBlocking(s.ctx, tag)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).Str("tag", tag.String()).Msg("receive failed")
			continue
		}

		msg, err := s.codec.Unpack(env.Payload)
		if err != nil {
			s.logger.Warn().Err(err).Str("tag", tag.String()).Msg("failed to unpack received buffer")
			continue
		}

		n := s.transport.ProcessCount()
		valid := msg.Sender >= 0 && msg.Sender < n
		for _, d := range msg.Buffer {
			if d.Rank < 0 || d.Rank >= n {
				valid = false
			}
		}
		if !valid {
			s.logger.Warn().Int("sender", msg.Sender).Str("tag", tag.String()).Msg("discarding buffer with out-of-range ranks")
			continue
		}

		s.metrics.MessagesReceived.WithLabelValues(tag.String()).Inc()

		if tag == transport.TagPush && s.protocol.Config().PullEnabled {
			reply := s.protocol.ToSend()
			payload, err := s.codec.Pack(wire.Message{Sender: s.transport.OwnRank(), Buffer: reply})
			if err != nil {
				s.logger.Error().Err(err).Msg("failed to pack pull reply")
			} else {
				s.dispatch(msg.Sender, transport.TagPull, payload)
			}
		}

		evictions := s.protocol.Apply(msg.Buffer)
		s.recordEvictions(evictions)
		s.metrics.ViewSize.Set(float64(s.protocol.View().Size()))
	}
}

// recordEvictions adds one merge's eviction counts to the merge-evictions
// counter vec, broken down by reason.
func (s *Service) recordEvictions(counts gossip.EvictionCounts) {
	if counts.Oldest > 0 {
		s.metrics.MergeEvictions.WithLabelValues(metrics.ReasonOldest).Add(float64(counts.Oldest))
	}
	if counts.Head > 0 {
		s.metrics.MergeEvictions.WithLabelValues(metrics.ReasonHead).Add(float64(counts.Head))
	}
	if counts.Random > 0 {
		s.metrics.MergeEvictions.WithLabelValues(metrics.ReasonRandom).Add(float64(counts.Random))
	}
}

func (s *Service) dispatch(peer int, tag transport.Tag, payload []byte) {
	_, err := s.governor.Go(s.ctx, peer, int(tag), func(ctx context.Context) error {
		return s.transport.SendAsync(ctx, peer, tag, payload)
	})
	if err != nil {
		s.logger.Warn().Err(err).Int("peer", peer).Str("tag", tag.String()).Msg("send not admitted")
		return
	}
	s.metrics.MessagesSent.WithLabelValues(tag.String()).Inc()
}
