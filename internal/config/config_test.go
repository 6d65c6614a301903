package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T) string
		wantErr  bool
		validate func(*testing.T, *Config)
	}{
		{
			name: "load default config",
			setup: func(t *testing.T) string {
				return ""
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "CP-SIM-001", cfg.Simulator.ChargePointID)
				assert.Equal(t, 2, cfg.Simulator.Connectors)
				assert.Equal(t, "Accepted", cfg.Simulator.RemoteStartStopPolicy)
				assert.Equal(t, 2*time.Second, cfg.Simulator.PlugInDelay)
				assert.Equal(t, time.Second, cfg.Simulator.StopStepDelay)
				assert.Equal(t, "DEADBEEF", cfg.Simulator.DefaultIdTag)
				assert.Equal(t, "memory", cfg.Storage.Driver)
				assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
				assert.Equal(t, "0.0.0.0:8090", cfg.GetServerAddr())
			},
		},
		{
			name: "load config with environment variables",
			setup: func(t *testing.T) string {
				t.Setenv("SIMULATOR_SIMULATOR_CHARGE_POINT_ID", "CP-ENV")
				t.Setenv("SIMULATOR_REDIS_ADDR", "redis:6379")
				t.Setenv("SIMULATOR_SERVER_PORT", "9090")
				return ""
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "CP-ENV", cfg.Simulator.ChargePointID)
				assert.Equal(t, "redis:6379", cfg.Redis.Addr)
				assert.Equal(t, 9090, cfg.Server.Port)
			},
		},
		{
			name: "load config file",
			setup: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "simulator.yaml")
				content := `
simulator:
  central_system_url: ws://csms.example:9000/ocpp/
  charge_point_id: CP-FILE
  remote_start_stop_policy: Rejected
  plug_in_delay: 5s
storage:
  driver: redis
log:
  level: debug
`
				require.NoError(t, os.WriteFile(path, []byte(content), 0644))
				return path
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "CP-FILE", cfg.Simulator.ChargePointID)
				assert.Equal(t, "Rejected", cfg.Simulator.RemoteStartStopPolicy)
				assert.Equal(t, 5*time.Second, cfg.Simulator.PlugInDelay)
				assert.Equal(t, "redis", cfg.Storage.Driver)
				assert.Equal(t, "debug", cfg.Log.Level)
				assert.Equal(t, "ws://csms.example:9000/ocpp/CP-FILE", cfg.ConnectURL())
			},
		},
		{
			name: "missing config file",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "absent.yaml")
			},
			wantErr: true,
		},
		{
			name: "invalid policy",
			setup: func(t *testing.T) string {
				t.Setenv("SIMULATOR_SIMULATOR_REMOTE_START_STOP_POLICY", "Maybe")
				return ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.setup(t)
			cfg, err := Load(path)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Simulator: SimulatorConfig{ChargePointID: "CP", RemoteStartStopPolicy: "Accepted", Connectors: 2},
			Storage:   StorageConfig{Driver: "memory"},
		}
	}

	assert.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Simulator.ChargePointID = " "
	assert.ErrorContains(t, cfg.Validate(), "charge_point_id")

	cfg = valid()
	cfg.Simulator.Connectors = 0
	assert.ErrorContains(t, cfg.Validate(), "connectors")

	cfg = valid()
	cfg.Storage.Driver = "etcd"
	assert.ErrorContains(t, cfg.Validate(), "storage.driver")

	cfg = valid()
	cfg.Kafka.Enabled = true
	assert.ErrorContains(t, cfg.Validate(), "kafka.brokers")
}
