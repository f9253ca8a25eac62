package service

import (
	"github.com/rs/zerolog"

	"github.com/chrysalis/peer-sampling-service/pkg/descriptor"
)

// logDiagnostics writes one log line per descriptor in view, in the
// "rank: <r>, age: <a>" shape the reference cohort's stdout dump uses,
// followed by a separator so successive rounds are easy to tell apart by
// eye in a log stream.
func logDiagnostics(logger zerolog.Logger, view []descriptor.Descriptor) {
	for _, d := range view {
		logger.Info().Int("peer_rank", d.Rank).Int("peer_age", d.Age).Msgf("rank: %d, age: %d", d.Rank, d.Age)
	}
	logger.Info().Msg("----------------------------------------")
}
