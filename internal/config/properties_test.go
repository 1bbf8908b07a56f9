package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
server:
  port: 9000
properties:
  default_goods_point_rate: 0.1
  vip_threshold: 500
  manager_commission: 0.05
  guide_manager_commission: 0.02
  director_commission: 0.03
  guide_director_commission: 0.01
  agent_commission: 0.04
  default_point_dump_rate: 0.001
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), baseYAML)

	cfg, err := LoadConfig(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Jobs.PointDecayHour)
	assert.Equal(t, 64, cfg.Business.ReferralMaxDepth)
	assert.Equal(t, 20, cfg.Redis.PoolSize)
	assert.Equal(t, "commission_settled", cfg.Kafka.Topic.CommissionSettled)
	assert.Equal(t, 500.0, cfg.Properties.VIPThreshold)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestProvider_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, baseYAML)

	v := viper.New()
	_, err := LoadConfig(v, path)
	require.NoError(t, err)

	p, err := NewProvider(v, logrus.New())
	require.NoError(t, err)
	assert.True(t, p.Properties().VIPThreshold.Equal(decimal.NewFromInt(500)))
	assert.True(t, p.Properties().ManagerCommission.Equal(decimal.RequireFromString("0.05")))

	writeConfig(t, dir, `
properties:
  vip_threshold: 800
  manager_commission: 0.06
`)

	props, err := p.Reload()
	require.NoError(t, err)
	assert.True(t, props.VIPThreshold.Equal(decimal.NewFromInt(800)))
	assert.True(t, props.ManagerCommission.Equal(decimal.RequireFromString("0.06")))
	// 未配置的参数按 0 处理
	assert.True(t, props.AgentCommission.IsZero())
	assert.True(t, p.Properties().VIPThreshold.Equal(decimal.NewFromInt(800)))
}

func TestStaticProperties(t *testing.T) {
	s := StaticProperties{VIPThreshold: decimal.NewFromInt(10)}
	assert.True(t, s.Properties().VIPThreshold.Equal(decimal.NewFromInt(10)))
}
