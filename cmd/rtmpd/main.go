package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	rtmp "github.com/torresjeff/rtmp-ingest"
	"github.com/torresjeff/rtmp-ingest/api"
	"github.com/torresjeff/rtmp-ingest/config"
	"github.com/torresjeff/rtmp-ingest/logger"
	"github.com/torresjeff/rtmp-ingest/recorder"
	"go.uber.org/zap"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	configPath string
	addr       string
	logLevel   string
	recordDir  string
	apiAddr    string
	dev        bool
)

func main() {
	a := kingpin.New(filepath.Base(os.Args[0]), "rtmp ingest server")
	a.HelpFlag.Short('h')
	a.Flag("config", "config path (.toml, .yaml or .yml)").Short('c').StringVar(&configPath)
	a.Flag("addr", "rtmp listen address").StringVar(&addr)
	a.Flag("log-level", "debug, info, warn or error").StringVar(&logLevel)
	a.Flag("record-dir", "record every publish as flv under this directory").StringVar(&recordDir)
	a.Flag("api-addr", "serve the admin api on this address").StringVar(&apiAddr)
	a.Flag("dev", "log to the console in development format").BoolVar(&dev)
	if _, err := a.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "init flag fail: "+err.Error())
		os.Exit(-1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "init config fail: "+err.Error())
		os.Exit(-1)
	}

	log, err := logger.New(
		logger.WithLevelName(cfg.Logger.Level),
		logger.WithDevelopment(cfg.Logger.Development),
		logger.WithLogDir(cfg.Logger.Dir),
		logger.WithFileName(cfg.Logger.FileName),
		logger.WithRotation(cfg.Logger.MaxSize, cfg.Logger.MaxBackups, cfg.Logger.MaxAge),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger fail: "+err.Error())
		os.Exit(-1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("exiting", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if logLevel != "" {
		cfg.Logger.Level = logLevel
	}
	if recordDir != "" {
		cfg.Record.Enabled = true
		cfg.Record.Dir = recordDir
	}
	if apiAddr != "" {
		cfg.API.Enabled = true
		cfg.API.Addr = apiAddr
	}
	if dev {
		cfg.Logger.Development = true
	}
	return cfg, nil
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broadcaster := rtmp.NewBroadcaster(nil)
	server := &rtmp.Server{
		Logger:      log,
		Broadcaster: broadcaster,
		Config:      cfg.Server,
	}

	if cfg.Record.Enabled {
		rec, err := recorder.New(log.Named("recorder"), cfg.Record.Dir, cfg.Record.NodeID, nil)
		if err != nil {
			return err
		}
		defer rec.Close()
		server.NewHandler = rec.NewHandler
	}

	var wg sync.WaitGroup
	if cfg.API.Enabled {
		apiServer := api.NewServer(broadcaster, log.Named("api"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiServer.ListenAndServe(ctx, cfg.API.Addr); err != nil {
				log.Error("api server stopped", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		s := <-quit
		log.Info("shutting down", zap.Stringer("signal", s))
		cancel()
		server.Close()
	}()

	err := server.ListenAndServe(ctx)
	cancel()
	wg.Wait()
	if err == rtmp.ErrServerClosed {
		return nil
	}
	return err
}
