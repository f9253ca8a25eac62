package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chrysalis/peer-sampling-service/pkg/bootstrap"
	"github.com/chrysalis/peer-sampling-service/pkg/gossip"
	"github.com/chrysalis/peer-sampling-service/pkg/metrics"
	"github.com/chrysalis/peer-sampling-service/pkg/sendgov"
	"github.com/chrysalis/peer-sampling-service/pkg/service"
	"github.com/chrysalis/peer-sampling-service/pkg/transport/memory"
	"github.com/chrysalis/peer-sampling-service/pkg/view"
	"github.com/chrysalis/peer-sampling-service/pkg/wire"
)

var (
	flagSimN     int
	flagSimC     int
	flagSimH     int
	flagSimS     int
	flagSimDelta time.Duration
	flagSimFor   time.Duration
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run an in-process cohort of N nodes over an in-memory transport",
	Args:  cobra.NoArgs,
	RunE:  runSim,
}

func init() {
	simCmd.Flags().IntVar(&flagSimN, "n", 12, "number of simulated ranks")
	simCmd.Flags().IntVar(&flagSimC, "c", 6, "target view size")
	simCmd.Flags().IntVar(&flagSimH, "h", 1, "number of oldest descriptors replaced per round (H)")
	simCmd.Flags().IntVar(&flagSimS, "s", 1, "number of head descriptors evicted per merge (S)")
	simCmd.Flags().DurationVar(&flagSimDelta, "delta", 200*time.Millisecond, "interval between active gossip rounds")
	simCmd.Flags().DurationVar(&flagSimFor, "for", 5*time.Second, "how long to run the simulation before dumping rank 0's view")
}

func runSim(cmd *cobra.Command, args []string) error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}

	config := gossip.Config{
		C:           flagSimC,
		H:           flagSimH,
		S:           flagSimS,
		Delta:       flagSimDelta,
		PushEnabled: true,
		PullEnabled: true,
	}
	codec := wire.NewCodec(config.C)
	cohort := memory.NewCohort(flagSimN)

	services := make([]*service.Service, flagSimN)
	for rank := 0; rank < flagSimN; rank++ {
		logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Int("rank", rank).Logger()

		v := view.New()
		if err := bootstrap.Init(cohort.Endpoint(rank), v); err != nil {
			return fmt.Errorf("bootstrap rank %d: %w", rank, err)
		}

		protocol := gossip.New(config, rank, v)
		governor := sendgov.New(sendgov.DefaultConfig())
		m := metrics.New()

		services[rank] = service.New(protocol, cohort.Endpoint(rank), codec, governor, m, logger, service.Options{Diagnostics: rank == 0})
	}

	ctx, cancel := context.WithTimeout(context.Background(), flagSimFor)
	defer cancel()

	for _, s := range services {
		s.Start(ctx)
	}
	<-ctx.Done()
	for _, s := range services {
		s.Stop()
	}

	fmt.Println("final view sizes:")
	for rank, s := range services {
		fmt.Printf("rank %d: %d peers\n", rank, s.View().Size())
	}

	fmt.Println("rank 0 view:")
	for _, d := range services[0].View().Snapshot() {
		fmt.Printf("rank: %d, age: %d\n", d.Rank, d.Age)
	}
	fmt.Println("----------------------------------------")
	return nil
}
