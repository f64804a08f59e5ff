package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"loud-plotter/internal/api"
	"loud-plotter/internal/data"
	"loud-plotter/internal/model"
	"loud-plotter/internal/render"
	"loud-plotter/internal/service"
)

func main() {
	if err := newRootCmd(service.NewViper()).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd 返回命令行定义，参数覆盖配置文件
func newRootCmd(v *viper.Viper) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "loud-plotter",
		Short:        "Plot loud-sound detections streamed from a Bluetooth sensor.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config", "Directory containing config.yaml")
	cmd.Flags().String("transport", "", "Transport: rfcomm, serial, websocket or replay")
	cmd.Flags().String("address", "", "Bluetooth device address, e.g. 00:06:66:D0:E6:2F")
	cmd.Flags().Int("channel", 0, "RFCOMM channel")
	cmd.Flags().String("serial-port", "", "Serial device for the serial transport")
	cmd.Flags().String("ws-url", "", "Relay URL for the websocket transport")
	cmd.Flags().String("replay", "", "Captured stream file for the replay transport")
	cmd.Flags().String("output", "", "PNG file the chart is written to")
	cmd.Flags().String("metrics-addr", "", "Listen address for /metrics, empty to disable")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn or error")
	bindFlags(v, cmd)

	return cmd
}

// bindFlags 只有显式传入的参数才覆盖配置
func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	for key, flag := range map[string]string{
		"Device.Transport":  "transport",
		"Device.Address":    "address",
		"Device.Channel":    "channel",
		"Device.SerialPort": "serial-port",
		"Device.WSURL":      "ws-url",
		"Device.ReplayFile": "replay",
		"Plot.OutputPath":   "output",
		"Metrics.Addr":      "metrics-addr",
		"Log.Level":         "log-level",
	} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func run(ctx context.Context, v *viper.Viper, configPath string) error {
	cfg, err := service.LoadConfig(v, configPath)
	if err != nil {
		return err
	}
	if err := service.InitLogger(cfg.Log); err != nil {
		return err
	}
	defer service.Logger.Sync()
	logger := service.Logger

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetrics()

	// 1. 连接设备
	logger.Info("Connecting to sensor",
		zap.String("Transport", cfg.Device.Transport),
		zap.String("Address", cfg.Device.Address),
		zap.Int("Channel", cfg.Device.Channel))
	transport, err := api.Open(ctx, cfg.Device)
	if err != nil {
		logger.Error("Failed to connect to sensor", zap.Error(err))
		return err
	}
	connector := api.NewConnector(transport, cfg.Device, logger.With(zap.String("Component", "connector")), metrics)

	// 2. SeriesStore 与 Data Engine
	windows := make([]model.Window, 0, len(cfg.Stream.Windows))
	for _, w := range cfg.Stream.Windows {
		windows = append(windows, model.Window(w))
	}
	store := model.NewSeriesStore(windows, cfg.Stream.MaxPoints)
	opts := render.OptionsFromConfig(cfg.Plot)
	dataEngine := data.NewDataEngine(connector.GetLineChannel(), store, opts.Thresholds,
		logger.With(zap.String("Component", "data_engine")), metrics)

	// 3. 渲染
	renderer := render.NewChartRenderer(opts, store.Windows(), logger.With(zap.String("Component", "renderer")))
	loop := render.NewLoop(dataEngine.GetUpdateChannel(), renderer, logger.With(zap.String("Component", "render_loop")), metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return connector.Start(gctx) })
	g.Go(func() error { return dataEngine.Start(gctx) })
	g.Go(func() error { return loop.Run(gctx) })

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux(metrics)}
		g.Go(func() error {
			logger.Info("Serving metrics", zap.String("Addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Feed loop terminated", zap.Error(err))
		return err
	}
	logger.Info("Shut down cleanly", zap.String("Output", cfg.Plot.OutputPath))
	return nil
}

func metricsMux(metrics *service.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
