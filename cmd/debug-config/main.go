package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charging-platform/charge-point-simulator/internal/config"
)

// 配置调试工具
// 用于验证配置文件与环境变量的合并结果
func main() {
	configPath := flag.String("config", "", "path to a configuration file")
	flag.Parse()

	fmt.Println("=== Charge Point Simulator Configuration Test ===")

	fmt.Println("\n--- Environment Variables ---")
	envVars := []string{
		config.EnvPrefix + "_SIMULATOR_CENTRAL_SYSTEM_URL",
		config.EnvPrefix + "_SIMULATOR_CHARGE_POINT_ID",
		config.EnvPrefix + "_STORAGE_DRIVER",
		config.EnvPrefix + "_REDIS_ADDR",
		config.EnvPrefix + "_KAFKA_ENABLED",
		config.EnvPrefix + "_LOG_LEVEL",
	}
	for _, env := range envVars {
		value := os.Getenv(env)
		if value != "" {
			fmt.Printf("%s = %s\n", env, value)
		} else {
			fmt.Printf("%s = (not set)\n", env)
		}
	}

	fmt.Println("\n--- Loading Configuration ---")
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n--- Final Configuration ---")
	fmt.Printf("Charge Point ID: %s\n", cfg.Simulator.ChargePointID)
	fmt.Printf("Connect URL: %s\n", cfg.ConnectURL())
	fmt.Printf("Connectors: %d\n", cfg.Simulator.Connectors)
	fmt.Printf("Remote Start/Stop Policy: %s\n", cfg.Simulator.RemoteStartStopPolicy)
	fmt.Printf("Plug-in Delay: %s\n", cfg.Simulator.PlugInDelay)
	fmt.Printf("Storage Driver: %s\n", cfg.Storage.Driver)
	fmt.Printf("Redis Address: %s\n", cfg.Redis.Addr)
	fmt.Printf("Kafka Enabled: %v (brokers %v)\n", cfg.Kafka.Enabled, cfg.Kafka.Brokers)
	fmt.Printf("Control Address: %s\n", cfg.GetServerAddr())
	fmt.Printf("Metrics Address: %s\n", cfg.GetMetricsAddr())
	fmt.Printf("Log Level: %s\n", cfg.Log.Level)

	fmt.Println("\n=== Configuration Test Complete ===")
}
