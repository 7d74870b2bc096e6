package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"linefollower-robot/internal/calibration"
	"linefollower-robot/internal/clock"
	"linefollower-robot/internal/config"
	"linefollower-robot/internal/controller"
	"linefollower-robot/internal/event"
	"linefollower-robot/internal/handlers"
	"linefollower-robot/internal/hardware"
	"linefollower-robot/internal/hardware/sim"
	"linefollower-robot/internal/journal"
	"linefollower-robot/internal/logging"
	"linefollower-robot/internal/loop"
	"linefollower-robot/internal/remote"
	"linefollower-robot/internal/telemetry"
	"linefollower-robot/internal/types"
	"linefollower-robot/internal/util"
	"linefollower-robot/internal/web"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// main 是应用程序的主入口
func main() {
	configPath := flag.String("config", "", "配置文件路径，默认在 . 和 ./configs 中查找 config.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("启动失败", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	runID := util.NewRunID()
	ctx, cancel := context.WithCancel(util.ContextWithRunID(context.Background(), runID))
	defer cancel()

	// 1. 日志与远程通道
	// 发送端自身的日志不经过镜像，避免写失败时的递归
	baseLogger, err := logging.New(os.Stdout, cfg.Log.Format, cfg.Log.Level, runID, nil)
	if err != nil {
		return err
	}
	link, wsLink, err := newLink(cfg, runID, baseLogger)
	if err != nil {
		return err
	}
	var tx *remote.Transmitter
	if link != nil {
		tx, err = remote.NewTransmitter(link, remote.TransmitterConfig{
			QueueSize: cfg.Remote.QueueSize,
			Filter:    cfg.Remote.OutboundFilter,
		}, baseLogger)
		if err != nil {
			return err
		}
	}

	logger := baseLogger
	if tx != nil {
		mirrorLevel, err := logging.ParseLevel(cfg.Remote.LogLevel)
		if err != nil {
			return err
		}
		logger, err = logging.New(os.Stdout, cfg.Log.Format, cfg.Log.Level, runID, func(h slog.Handler) slog.Handler {
			return remote.NewMirrorHandler(h, tx, mirrorLevel)
		})
		if err != nil {
			return err
		}
	}
	slog.SetDefault(logger)

	// 2. 核心组件
	clk := clock.NewSystem()
	bus := event.NewBus(logger)
	store := calibration.NewStore(bus, clk, cfg.StoreConfig(), logger)

	motors := sim.NewMotors(logger)
	track := sim.NewTrack(motors, clk, cfg.Light.DefaultFloor, cfg.Light.DefaultStripe)
	buttons := sim.NewButtons()
	sensors := []loop.SensorSource{
		hardware.NewReportingSensor("light", types.SensorLight, track.LightSensor(), cfg.Light.ReportThreshold, clk),
		hardware.NewReportingSensor("distance", types.SensorUltrasonic, track.DistanceSensor(), cfg.Distance.ReportThreshold, clk),
	}

	var (
		outbound controller.MultiOutbound
		flushers []loop.Flusher
		closers  []io.Closer
	)
	if tx != nil {
		outbound = append(outbound, tx)
		flushers = append(flushers, tx)
		closers = append(closers, link)
	}
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		outbound = append(outbound, j)
		flushers = append(flushers, j)
		closers = append(closers, j)
	}

	orientation, _ := cfg.Orientation()
	initial, _ := cfg.InitialState()

	var lp *loop.Loop
	ctrl := controller.New(controller.Config{
		StaleAfterMs: cfg.Loop.StaleAfterMs,
		Orientation:  orientation,
		Strategy:     cfg.StrategyConfig(),
	}, controller.Deps{
		Bus:      bus,
		Store:    store,
		Motors:   motors,
		Clock:    clk,
		Outbound: outbound,
		Shutdown: func() { lp.Stop() },
		Logger:   logger,
	})
	if err := ctrl.Start(initial); err != nil {
		return fmt.Errorf("启动控制器失败: %w", err)
	}

	// 3. 状态页面、遥测和审计
	hub := web.NewHub(logger)
	go hub.Run(ctx)
	tracker := web.NewStateTracker(runID, cfg.Robot.ID, hub)
	if err := handlers.RegisterEventHandlers(bus, tracker, logger); err != nil {
		return err
	}
	refresher := handlers.NewStatusRefresher(tracker, ctrl, store, clk, cfg.HTTP.StatusIntervalMs, logger)

	if cfg.Telemetry.RedisAddr != "" {
		mirror, err := telemetry.NewRedisMirror(ctx, telemetry.Config{
			Addr:     cfg.Telemetry.RedisAddr,
			Password: cfg.Telemetry.RedisPassword,
			DB:       cfg.Telemetry.RedisDB,
			RobotID:  cfg.Robot.ID,
			TTL:      time.Duration(cfg.Telemetry.TTLSeconds) * time.Second,
		}, logger)
		if err != nil {
			// 遥测是可选的
			logger.Warn("Redis 状态镜像不可用", "error", err)
		} else {
			tracker.AddSink(mirror)
			go mirror.Run(ctx)
			defer mirror.Close()
		}
	}

	var server *web.Server
	if cfg.HTTP.Addr != "" {
		var remoteHandler http.Handler
		if wsLink != nil {
			remoteHandler = wsLink
		}
		server = web.NewServer(cfg.HTTP.Addr, tracker, hub, remoteHandler, logger)
		server.Start()
	}

	// 4. 控制循环
	var commands loop.CommandSource
	if link != nil {
		commands = remote.NewReceiver(link, clk, remote.ReceiverConfig{
			ReconnectIntervalMs: cfg.Remote.ReconnectIntervalMs,
			MaxCommandsPerTick:  cfg.Remote.MaxCommandsPerTick,
		}, logger)
	}
	lp = loop.New(loop.Config{
		TickDelay:       cfg.TickDelay(),
		MonitorInterval: time.Duration(cfg.Loop.MonitorIntervalMs) * time.Millisecond,
	}, loop.Deps{
		Bus:        bus,
		Controller: ctrl,
		Sensors:    sensors,
		Buttons:    buttons,
		Commands:   commands,
		Flushers:   flushers,
		Motors:     motors,
		Closers:    closers,
		Clock:      clk,
		OnTick:     refresher.OnTick,
		Logger:     logger,
	})

	logger.Info("=== 巡线机器人启动 ===", "robot_id", cfg.Robot.ID, "transport", cfg.Remote.Transport)
	go lp.Start(ctx)

	// 5. 优雅停机
	waitForShutdown(ctx, logger, cancel, lp)
	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("关闭状态服务器失败", "error", err)
		}
	}
	logger.Info("机器人已安全退出")
	return nil
}

// newLink 按配置创建远程通道，websocket 通道同时作为 /remote 路由返回
func newLink(cfg *config.Config, runID string, logger *slog.Logger) (remote.Link, *remote.WebSocketLink, error) {
	switch cfg.Remote.Transport {
	case "serial":
		return remote.NewSerialLink(cfg.Remote.Device, cfg.Remote.Baud, logger), nil, nil
	case "websocket":
		ws := remote.NewWebSocketLink(logger)
		return ws, ws, nil
	case "mqtt":
		return remote.NewMQTTLink(remote.MQTTConfig{
			Broker:   cfg.Remote.MQTT.Broker,
			ClientID: util.ClientID(cfg.Robot.ID, runID),
			Username: cfg.Remote.MQTT.Username,
			Password: cfg.Remote.MQTT.Password,
			Prefix:   cfg.Remote.MQTT.TopicPrefix,
			RobotID:  cfg.Robot.ID,
			QoS:      cfg.Remote.QoS(),
		}, logger), nil, nil
	case "none":
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("未知的远程通道 %q", cfg.Remote.Transport)
}

// waitForShutdown 等待系统信号或 EXIT 指令
func waitForShutdown(ctx context.Context, logger *slog.Logger, cancel context.CancelFunc, lp *loop.Loop) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	finished := make(chan struct{})
	go func() {
		lp.WaitForCompletion()
		close(finished)
	}()

	select {
	case <-sigChan:
		runID, _ := util.RunIDFromContext(ctx)
		logger.Info("接收到停机信号，正在停止控制循环...", "run", runID)
		lp.Stop()
		cancel()
		<-finished
	case <-finished:
		cancel()
	}
}
