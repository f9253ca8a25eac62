package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chrysalis/peer-sampling-service/pkg/bootstrap"
	"github.com/chrysalis/peer-sampling-service/pkg/gossip"
	"github.com/chrysalis/peer-sampling-service/pkg/metrics"
	"github.com/chrysalis/peer-sampling-service/pkg/sendgov"
	"github.com/chrysalis/peer-sampling-service/pkg/service"
	"github.com/chrysalis/peer-sampling-service/pkg/transport/wsnet"
	"github.com/chrysalis/peer-sampling-service/pkg/view"
	"github.com/chrysalis/peer-sampling-service/pkg/wire"
)

var (
	flagRank        int
	flagPeers       string
	flagC           int
	flagHealing     int
	flagSwap        int
	flagDelta       time.Duration
	flagPush        bool
	flagPull        bool
	flagDiagnostics bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single peer sampling node over the network",
	Args:  cobra.NoArgs,
	RunE:  runNode,
}

func init() {
	runCmd.Flags().IntVar(&flagRank, "rank", -1, "this node's rank within the cohort (required)")
	runCmd.Flags().StringVar(&flagPeers, "peers", "", "comma-separated rank=host:port entries for the full cohort, including this rank (required)")
	runCmd.Flags().IntVar(&flagC, "c", 20, "target view size")
	runCmd.Flags().IntVar(&flagHealing, "healing", 4, "number of oldest descriptors replaced per round (H)")
	runCmd.Flags().IntVar(&flagSwap, "swap", 4, "number of head descriptors evicted per merge (S)")
	runCmd.Flags().DurationVar(&flagDelta, "delta", time.Second, "interval between active gossip rounds")
	runCmd.Flags().BoolVar(&flagPush, "push", true, "enable the push half of the exchange")
	runCmd.Flags().BoolVar(&flagPull, "pull", true, "enable the pull half of the exchange")
	runCmd.Flags().BoolVar(&flagDiagnostics, "diagnostics", false, "log this node's view once per active round (only takes effect on rank 0)")
}

func parsePeerTable(spec string) (map[int]string, error) {
	addrs := make(map[int]string)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --peers entry %q, expected rank=host:port", entry)
		}
		rank, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid rank in --peers entry %q: %w", entry, err)
		}
		addrs[rank] = parts[1]
	}
	return addrs, nil
}

func runNode(cmd *cobra.Command, args []string) error {
	if flagRank < 0 {
		return fmt.Errorf("--rank is required")
	}
	addrs, err := parsePeerTable(flagPeers)
	if err != nil {
		return err
	}
	if _, ok := addrs[flagRank]; !ok {
		return fmt.Errorf("--peers does not contain an entry for this node's own rank %d", flagRank)
	}

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Int("rank", flagRank).Logger()

	tr := wsnet.New(flagRank, addrs, logger)

	v := view.New()
	if err := bootstrap.Init(tr, v); err != nil {
		logger.Error().Err(err).Msg("bootstrap failed")
		tr.Abort(-1)
		return err
	}

	config := gossip.Config{
		C:           flagC,
		H:           flagHealing,
		S:           flagSwap,
		Delta:       flagDelta,
		PushEnabled: flagPush,
		PullEnabled: flagPull,
	}
	protocol := gossip.New(config, flagRank, v)
	codec := wire.NewCodec(config.C)
	governor := sendgov.New(sendgov.DefaultConfig())
	m := metrics.New()

	svc := service.New(protocol, tr, codec, governor, m, logger, service.Options{Diagnostics: flagDiagnostics})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go tr.ListenAndServe(ctx)
	time.Sleep(100 * time.Millisecond) // let the listener come up before any peer dials us
	svc.Start(ctx)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
		metricsServer := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer metricsServer.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	svc.Stop()
	cancel()
	return nil
}
