package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// Config 是 TOML 文件映射的整体结构，网关进程只服务一个 origin。
type Config struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	// StoragePath 是所有缓存世代的根目录，每个世代独占一个子目录。
	StoragePath string `mapstructure:"StoragePath"`

	// Generation 命名当前缓存世代，部署时随版本号变化；激活阶段会删除
	// 其余所有世代。
	Generation string `mapstructure:"Generation"`

	// Domain 是网关对外服务的 Host；Host 不匹配的请求按原样透传，不参与缓存。
	Domain string `mapstructure:"Domain"`

	// Upstream 是被代理的 origin 地址，所有同源请求最终回源到这里。
	Upstream        string   `mapstructure:"Upstream"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`

	// CoreAssets 是安装阶段预热的 app shell 路径列表，按声明顺序抓取。
	CoreAssets []string `mapstructure:"CoreAssets"`

	// FreshPaths 列出必须网络优先的路径前缀（例如词典目录）。
	FreshPaths []string `mapstructure:"FreshPaths"`

	// ConfigResource 是棋盘配置文件的路径，离线且无缓存时返回内置的
	// 空配置兜底。
	ConfigResource string `mapstructure:"ConfigResource"`
}
