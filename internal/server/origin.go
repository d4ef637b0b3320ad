package server

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/shell-gate/shell-gate/internal/config"
)

// Origin 将网关对外 Domain 与解析后的 Upstream URL 聚合在一起，
// 供路由/代理层直接复用，避免每个请求重复解析配置。
type Origin struct {
	// Domain 是配置声明的对外 Host（不含端口）。
	Domain string
	// UpstreamURL 在构造时提前解析完成，便于后续请求快速 ResolveReference。
	UpstreamURL *url.URL
	// Generation 记录当前缓存世代名，方便日志与响应头输出。
	Generation string
}

// NewOrigin 根据配置构建 Origin 描述。调用方应在启动阶段创建一次并复用。
func NewOrigin(cfg *config.Config) (*Origin, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	domain := normalizeDomain(cfg.Domain)
	if domain == "" {
		return nil, fmt.Errorf("invalid domain: %q", cfg.Domain)
	}

	upstreamURL, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream: %w", err)
	}

	return &Origin{
		Domain:      domain,
		UpstreamURL: upstreamURL,
		Generation:  cfg.Generation,
	}, nil
}

// Controls 判断请求 Host（可能带端口）是否属于本网关的 origin。
// Host 为空视为同源，保持与直接访问监听端口一致的行为。
func (o *Origin) Controls(host string) bool {
	if o == nil {
		return false
	}
	normalized := normalizeHost(host)
	if normalized == "" {
		return true
	}
	return normalized == o.Domain
}

// Resolve 基于 Upstream 构造回源 URL，保持路径与查询串不变。
func (o *Origin) Resolve(path string, rawQuery string) *url.URL {
	relative := &url.URL{Path: path, RawPath: path}
	if rawQuery != "" {
		relative.RawQuery = rawQuery
	}
	return o.UpstreamURL.ResolveReference(relative)
}

// normalizeHost 去掉端口号并统一为小写，容忍 host:port 与纯 host 两种写法。
func normalizeHost(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		return host
	}
	return raw
}

func normalizeDomain(raw string) string {
	return normalizeHost(raw)
}
