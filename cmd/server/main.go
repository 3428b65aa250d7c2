package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"matchbook/api/grpcserver"
	"matchbook/api/protocol"
	"matchbook/api/ws"
	"matchbook/config"
	"matchbook/domain/intent"
	"matchbook/domain/matching"
	"matchbook/infra/codec"
	"matchbook/infra/kafka"
	"matchbook/infra/logger"
	"matchbook/infra/queue"
	"matchbook/infra/sequence"
	entrywal "matchbook/infra/wal/entry"
	exitwal "matchbook/infra/wal/exit"
	"matchbook/jobs/broadcaster"
	"matchbook/metrics"
	"matchbook/service"
	"matchbook/snapshot"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults are used when empty)")
	interactive := flag.Bool("console", true, "read commands from stdin")
	flag.Parse()

	if err := run(*configPath, *interactive); err != nil {
		fmt.Fprintln(os.Stderr, "matchbook:", err)
		os.Exit(1)
	}
}

func run(configPath string, interactive bool) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}

	log, level, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// ---------------- Domain ----------------

	ids := sequence.NewIDGenerator()
	engine := matching.New(ids,
		matching.WithLogger(log.Named("matching")),
		matching.WithBookConfig(cfg.Engine.BookConfig()),
	)
	store := snapshot.NewStore()
	for _, instr := range cfg.Engine.Instruments {
		if err := engine.CreateOrderBook(instr); err != nil {
			return err
		}
		if v, ok := engine.View(instr, cfg.Engine.SnapshotDepth); ok {
			store.Publish(0, v)
		}
	}

	stats := metrics.New()
	opts := []service.Option{
		service.WithLogger(log.Named("order_manager")),
		service.WithSnapshots(store, cfg.Engine.SnapshotDepth),
		service.WithRecorder(stats),
	}

	// ---------------- Entry journal ----------------

	var journal *entrywal.Journal
	if cfg.Journal.Enabled {
		c, err := codec.ByName(cfg.Journal.Codec)
		if err != nil {
			return err
		}
		w, err := entrywal.Open(entrywal.Config{
			Dir:             cfg.Journal.Dir,
			SegmentSize:     cfg.Journal.SegmentSize,
			SegmentDuration: cfg.Journal.SegmentDuration,
			SyncEveryAppend: cfg.Journal.SyncEveryAppend,
		})
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		journal = entrywal.NewJournal(w, c)
		defer journal.Close()
		opts = append(opts, service.WithJournal(journal))
		log.Info("journal open", zap.String("dir", cfg.Journal.Dir), zap.Uint64("last_seq", w.LastSeq()))
	}

	// ---------------- Trade outbox ----------------

	var bc *broadcaster.Broadcaster
	if cfg.Outbox.Enabled {
		c, err := codec.ByName(cfg.Outbox.Codec)
		if err != nil {
			return err
		}
		outbox, err := exitwal.Open(cfg.Outbox.Dir, c)
		if err != nil {
			return fmt.Errorf("outbox: %w", err)
		}
		defer outbox.Close()
		opts = append(opts, service.WithOutbox(outbox))

		bc, err = broadcaster.New(outbox, cfg.Kafka.Brokers, broadcaster.Config{
			Topic:         cfg.Kafka.TradesTopic,
			Interval:      cfg.Kafka.FlushInterval,
			MaxRetries:    cfg.Kafka.MaxRetries,
			TruncateEvery: cfg.Kafka.TruncateEvery,
			Codec:         c.Name(),
		}, broadcaster.WithLogger(log.Named("broadcaster")), broadcaster.WithObserver(stats))
		if err != nil {
			return fmt.Errorf("broadcaster: %w", err)
		}
		defer bc.Close()
	}

	// ---------------- Listeners ----------------

	var hub *ws.Hub
	if cfg.WS.Enabled {
		hub = ws.NewHub(store, log.Named("ws"))
		opts = append(opts, service.WithListener(hub))
	}

	var reports *kafka.ReportPublisher
	if cfg.Kafka.ReportsTopic != "" && len(cfg.Kafka.Brokers) > 0 {
		p := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ReportsTopic)
		defer p.Close()
		reports = kafka.NewReportPublisher(p, protocol.EncodeReport, 4096, log.Named("reports"))
		opts = append(opts, service.WithListener(reports))
	}

	manager := service.NewOrderManager(engine, queue.New[service.Message](), ids, opts...)

	// ---------------- Start ----------------

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// outbound jobs outlive the manager so they see its last results
	outCtx, stopOut := context.WithCancel(context.Background())
	defer stopOut()

	if err := manager.Start(context.Background()); err != nil {
		return err
	}

	var wg sync.WaitGroup
	goRun := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				log.Error(name+" exited", zap.Error(err))
				stop()
			}
		}()
	}

	if bc != nil {
		bc.Start(outCtx)
	}
	if reports != nil {
		go reports.Run(outCtx)
	}

	var grpcSrv *grpc.Server
	if cfg.GRPC.Enabled {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.GRPC.Addr, err)
		}
		grpcSrv = grpc.NewServer()
		grpcserver.NewServer(manager, store, log.Named("grpc")).Register(grpcSrv)
		goRun("grpc", func() error {
			log.Info("gRPC listening", zap.String("addr", cfg.GRPC.Addr))
			return grpcSrv.Serve(lis)
		})
	}

	var wsSrv *http.Server
	if hub != nil {
		go hub.Run(outCtx)
		mux := http.NewServeMux()
		mux.Handle("/feed", hub)
		wsSrv = &http.Server{Addr: cfg.WS.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		goRun("ws", func() error {
			log.Info("feed listening", zap.String("addr", cfg.WS.Addr))
			if err := wsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if cfg.Metrics.Enabled {
		goRun("metrics", func() error { return stats.Serve(outCtx, cfg.Metrics.Addr, log) })
	}

	if cfg.Kafka.IntentsTopic != "" {
		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.IntentsTopic,
			GroupID: cfg.Kafka.GroupID,
		}, protocol.Parse, manager,
			kafka.WithConsumerLogger(log.Named("kafka")),
			kafka.WithStopError(service.ErrStopped))
		goRun("kafka consumer", func() error {
			defer consumer.Close()
			return consumer.Run(ctx)
		})
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, log.Named("config"))
		if err != nil {
			log.Warn("config hot reload disabled", zap.Error(err))
		} else {
			known := make(map[string]bool)
			for _, instr := range cfg.Engine.Instruments {
				known[instr] = true
			}
			go func() {
				_ = watcher.Run(ctx, func(next config.Config) {
					if err := logger.SetLevel(level, next.Log.Level); err != nil {
						log.Warn("log level not applied", zap.Error(err))
					}
					for _, instr := range next.Engine.Instruments {
						if known[instr] {
							continue
						}
						known[instr] = true
						if err := manager.Submit(intent.NewCreateBook("config", instr)); err != nil {
							log.Warn("book not created", zap.String("instrument", instr), zap.Error(err))
						}
					}
				})
			}()
		}
	}

	if interactive {
		c := newConsole(manager, store, os.Stdout, stop)
		go c.run(ctx, os.Stdin)
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug("sd_notify failed", zap.Error(err))
	}
	log.Info("matchbook running", zap.Strings("instruments", cfg.Engine.Instruments))

	<-ctx.Done()

	// ---------------- Shutdown ----------------

	log.Info("shutting down")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	manager.Stop()
	if journal != nil {
		if err := journal.Sync(); err != nil {
			log.Error("journal sync failed", zap.Error(err))
		}
	}

	stopOut()
	if wsSrv != nil {
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = wsSrv.Shutdown(shutdown)
		cancel()
	}
	if bc != nil {
		<-bc.Done()
	}
	if reports != nil {
		<-reports.Done()
	}
	wg.Wait()

	log.Info("matchbook stopped",
		zap.Uint64("applied", manager.Applied()),
		zap.Int("trades", engine.TradeCount()))
	return nil
}
