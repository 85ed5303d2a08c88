package conf

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Bootstrap 服务配置结构体
type Bootstrap struct {
	Server  *Server  `yaml:"server"`
	Data    *Data    `yaml:"data"`
	Planner *Planner `yaml:"planner"`
	Amap    *Amap    `yaml:"amap"`
	Polling *Polling `yaml:"polling"`
	Log     *Log     `yaml:"log"`
}

type Server struct {
	HTTP *HTTP `yaml:"http"`
}

type HTTP struct {
	Addr    string `yaml:"addr"`
	Timeout string `yaml:"timeout"`
}

type Data struct {
	Redis    *Redis    `yaml:"redis"`
	Database *Database `yaml:"database"`
	// SessionTTL 会话与计划条目的保存时长，到期后对读取方不可见
	SessionTTL string `yaml:"session_ttl"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Database struct {
	Driver string `yaml:"driver"`
	Source string `yaml:"source"`
}

// Planner LLM 相关配置。BaseURL 为空时使用本地降级生成器。
type Planner struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	RPM     int    `yaml:"rpm"`
	QPS     int    `yaml:"qps"`
}

// Amap 高德地理编码配置
type Amap struct {
	Key string `yaml:"key"`
	// RequestDelay 连续两次地理编码之间的固定间隔，限流要求
	RequestDelay string `yaml:"request_delay"`
}

// Polling 轮询策略，由调用方持有
type Polling struct {
	Interval    string `yaml:"interval"`
	MaxAttempts int    `yaml:"max_attempts"`
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load 从指定路径加载配置
func Load(path string) (*Bootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var bc Bootstrap
	if err := yaml.Unmarshal(data, &bc); err != nil {
		return nil, err
	}

	return &bc, nil
}

// SessionTTL 解析会话保存时长，未配置时默认 24 小时。
func (d *Data) SessionTTLOrDefault() time.Duration {
	if d == nil || d.SessionTTL == "" {
		return 24 * time.Hour
	}
	ttl, err := time.ParseDuration(d.SessionTTL)
	if err != nil || ttl <= 0 {
		return 24 * time.Hour
	}
	return ttl
}

// IntervalOrDefault 解析轮询间隔，默认 2 秒。
func (p *Polling) IntervalOrDefault() time.Duration {
	if p == nil || p.Interval == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(p.Interval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// MaxAttemptsOrDefault 轮询次数上限，默认 30 次。
func (p *Polling) MaxAttemptsOrDefault() int {
	if p == nil || p.MaxAttempts <= 0 {
		return 30
	}
	return p.MaxAttempts
}
