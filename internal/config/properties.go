package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Properties 业务计算使用的运营参数快照
type Properties struct {
	DefaultGoodsPointRate   decimal.Decimal `json:"default_goods_point_rate"`
	VIPThreshold            decimal.Decimal `json:"vip_threshold"`
	ManagerCommission       decimal.Decimal `json:"manager_commission"`
	GuideManagerCommission  decimal.Decimal `json:"guide_manager_commission"`
	DirectorCommission      decimal.Decimal `json:"director_commission"`
	GuideDirectorCommission decimal.Decimal `json:"guide_director_commission"`
	AgentCommission         decimal.Decimal `json:"agent_commission"`
	DefaultPointDumpRate    decimal.Decimal `json:"default_point_dump_rate"`
}

// NewProperties 缺失的参数按 0 处理
func NewProperties(raw PropertiesConfig) Properties {
	return Properties{
		DefaultGoodsPointRate:   decimal.NewFromFloat(raw.DefaultGoodsPointRate),
		VIPThreshold:            decimal.NewFromFloat(raw.VIPThreshold),
		ManagerCommission:       decimal.NewFromFloat(raw.ManagerCommission),
		GuideManagerCommission:  decimal.NewFromFloat(raw.GuideManagerCommission),
		DirectorCommission:      decimal.NewFromFloat(raw.DirectorCommission),
		GuideDirectorCommission: decimal.NewFromFloat(raw.GuideDirectorCommission),
		AgentCommission:         decimal.NewFromFloat(raw.AgentCommission),
		DefaultPointDumpRate:    decimal.NewFromFloat(raw.DefaultPointDumpRate),
	}
}

// StaticProperties 固定参数，测试与离线工具使用
type StaticProperties Properties

func (p StaticProperties) Properties() Properties {
	return Properties(p)
}

// Provider 从 viper 读取运营参数，配置文件变化或手动 Reload 后刷新快照
type Provider struct {
	mu    sync.RWMutex
	v     *viper.Viper
	log   *logrus.Entry
	props Properties
}

func NewProvider(v *viper.Viper, log *logrus.Logger) (*Provider, error) {
	p := &Provider{
		v:   v,
		log: log.WithField("component", "properties"),
	}
	if err := p.rebuild(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) Properties() Properties {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.props
}

// Reload 重新读取配置文件
func (p *Provider) Reload() (Properties, error) {
	if err := p.v.ReadInConfig(); err != nil {
		return Properties{}, fmt.Errorf("重新读取配置文件失败: %w", err)
	}
	if err := p.rebuild(); err != nil {
		return Properties{}, err
	}
	p.log.Info("运营参数已重新加载")
	return p.Properties(), nil
}

// Watch 监听配置文件变化
func (p *Provider) Watch() {
	p.v.OnConfigChange(func(e fsnotify.Event) {
		if err := p.rebuild(); err != nil {
			p.log.WithError(err).Error("配置文件变化后刷新运营参数失败")
			return
		}
		p.log.WithField("file", e.Name).Info("配置文件变化，运营参数已刷新")
	})
	p.v.WatchConfig()
}

func (p *Provider) rebuild() error {
	var raw PropertiesConfig
	if err := p.v.UnmarshalKey("properties", &raw); err != nil {
		return fmt.Errorf("解析运营参数失败: %w", err)
	}

	props := NewProperties(raw)

	p.mu.Lock()
	p.props = props
	p.mu.Unlock()
	return nil
}
