package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/business/chargepoint"
	"github.com/charging-platform/charge-point-simulator/internal/config"
	"github.com/charging-platform/charge-point-simulator/internal/control"
	"github.com/charging-platform/charge-point-simulator/internal/logger"
	"github.com/charging-platform/charge-point-simulator/internal/message"
	"github.com/charging-platform/charge-point-simulator/internal/storage"
	"github.com/charging-platform/charge-point-simulator/internal/transport/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML/JSON/TOML configuration file")
	flag.Parse()
	if *configPath == "" {
		*configPath = os.Getenv(config.EnvPrefix + "_CONFIG")
	}

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Async:  cfg.Log.Async,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.Info("Logger initialized")

	// 3. 初始化存储
	stores, err := storage.NewStores(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	log.Infof("Storage initialized with %s driver", cfg.Storage.Driver)

	// 4. 初始化 Kafka 生产者
	var producer *message.KafkaProducer
	if cfg.Kafka.Enabled {
		producer, err = message.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, log)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka producer: %v", err)
		}
		log.Info("Kafka producer initialized")
	}

	// 5. 初始化充电桩引擎
	opts := chargepoint.OptionsFromConfig(cfg.Simulator)
	opts.Durable = stores.Durable
	opts.Session = stores.Session
	// 会话存储键按配置的充电桩ID加前缀
	opts.PinChargePointID = true
	opts.Connections = chargepoint.WebSocketConnectionFactory(websocket.ConfigFrom(cfg.WebSocket, cfg.Simulator.FrameBuffer), log)
	opts.Logger = log
	opts.OnStatusChange = func(status chargepoint.Status, detail string) {
		log.Infof("Charge point status: %s %s", status, detail)
	}
	if producer != nil {
		opts.Publisher = producer
	}
	engine, err := chargepoint.New(opts)
	if err != nil {
		log.Fatalf("Failed to initialize charge point engine: %v", err)
	}
	log.Infof("Charge point %s initialized with %d connectors", cfg.Simulator.ChargePointID, opts.Connectors)

	ctx, cancelEngine := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("Charge point engine stopped: %v", err)
		}
	}()

	// 6. 初始化控制指令分发器
	dispatcher := control.NewDispatcher(engine, cfg.Simulator.ChargePointID, log)

	// 7. 初始化 Kafka 消费者
	var consumer *message.KafkaConsumer
	if cfg.Kafka.Enabled {
		consumer, err = message.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.CommandsTopic, cfg.Simulator.ChargePointID, log)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka consumer: %v", err)
		}
		if err := consumer.Start(dispatcher.KafkaHandler()); err != nil {
			log.Fatalf("Failed to start Kafka consumer: %v", err)
		}
		log.Infof("Kafka consumer started with brokers: %v, group: %s", cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup)
	}

	// 8. 启动监控服务器
	go startMetricsServer(cfg.GetMetricsAddr(), log)

	// 9. 启动控制接口
	mainMux := http.NewServeMux()
	control.NewHandler(dispatcher, control.EngineStatusReader{Engine: engine}).Register(mainMux)
	server := &http.Server{
		Addr:           cfg.GetServerAddr(),
		Handler:        mainMux,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		log.Infof("Control server listening on %s", cfg.GetServerAddr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Control server failed: %v", err)
		}
	}()

	// 10. 自动连接
	if cfg.Simulator.AutoConnect {
		if err := dispatcher.Dispatch(ctx, "config", &message.Command{CommandName: control.CommandConnect}); err != nil {
			log.Errorf("Auto connect failed: %v", err)
		}
	}

	log.Info("Charge point simulator started successfully")

	// 11. 监听并处理优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down simulator...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 1. 关闭控制接口
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Error shutting down control server: %v", err)
	}
	log.Info("Control server shut down")

	// 2. 关闭 Kafka 消费者
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Errorf("Error closing Kafka consumer: %v", err)
		}
		log.Info("Kafka consumer closed")
	}

	// 3. 停止引擎，以 3001 关闭中央系统连接
	cancelEngine()
	select {
	case <-engineDone:
		log.Info("Charge point engine stopped")
	case <-shutdownCtx.Done():
		log.Warn("Timed out waiting for charge point engine")
	}

	// 4. 关闭 Kafka 生产者
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("Error closing Kafka producer: %v", err)
		}
		log.Info("Kafka producer closed")
	}

	// 5. 关闭存储
	if session, ok := stores.Session.(storage.Clearable); ok && cfg.Storage.ClearSessionOnExit {
		clearCtx, clearCancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := session.Clear(clearCtx); err != nil {
			log.Errorf("Error clearing session storage: %v", err)
		}
		clearCancel()
	}
	if err := stores.Close(); err != nil {
		log.Errorf("Error closing storage: %v", err)
	}
	log.Info("Storage closed")

	log.Info("Simulator gracefully stopped.")
}

// startMetricsServer 启动监控服务器
func startMetricsServer(addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Infof("Metrics server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Metrics server failed: %v", err)
	}
}
