package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"main/internal/engine"
	"main/internal/notify"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/orderbook"
	"main/internal/portfolio"
	"main/internal/pricefeed"
	"main/internal/repository"
	"main/internal/scanner"
	"main/internal/strategy"
	"main/internal/trader"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if cfg.Profiling.ServerAddress != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "updown-trader",
			ServerAddress:   cfg.Profiling.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	repo, err := buildRepository(cfg)
	if err != nil {
		log.Fatalf("repository init failed: %v", err)
	}
	defer repo.Close()
	if err := repo.Init(ctx); err != nil {
		log.Fatalf("repository migrate failed: %v", err)
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}
	markets := scanner.New(httpClient)
	books := orderbook.New(httpClient)

	feed := pricefeed.NewBinance(ctx, time.Duration(cfg.Loop.PriceHistoryMinutes)*time.Minute)
	if err := feed.Start(ctx); err != nil {
		log.Fatalf("price feed start failed: %v", err)
	}
	defer feed.Close()

	eng := engine.NewPaper(cfg.Trading, cfg.Risk.InitialCapital)
	ledger := portfolio.NewLedger(repo, cfg.Risk)

	ensemble := strategy.NewEnsemble(cfg.Trading.EnsembleMinVotes,
		strategy.NewDirectional(),
		strategy.NewOrderbookImbalance(cfg.Trading.ImbalanceThreshold),
	)
	arbitrage := strategy.NewArbitrage(cfg.Trading.FeeRate, cfg.Trading.MinArbProfit)

	telegram := notify.NewTelegram(cfg.Telegram, httpClient)
	defer telegram.Close()

	metricsSrv := obs.Serve(cfg.Obs.MetricsAddr)
	defer metricsSrv.Close()

	bot := trader.New(cfg, eng, ledger, repo, markets, books, feed, telegram, ensemble, arbitrage)
	telegram.Run(ctx, bot)

	logs.Infof("trader started: sizing=%s interval=%s db=%s",
		cfg.Trading.SizingMode, cfg.ScanInterval(), cfg.Database.Driver)
	if err := bot.Run(ctx); err != nil {
		log.Fatalf("trader stopped: %v", err)
	}
	logs.Info("shutdown complete")
}

func buildRepository(cfg ops.Config) (repository.Repository, error) {
	if cfg.Database.Driver == "postgres" {
		return repository.NewPostgres(cfg.Database)
	}
	return repository.NewMemory(), nil
}
