package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if c.StoragePath == "" {
		return newFieldError("StoragePath", "不能为空")
	}
	if c.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("UpstreamTimeout", "必须大于 0")
	}

	if err := validateGeneration(c.Generation); err != nil {
		return fmt.Errorf("Generation: %w", err)
	}
	if err := validateDomain(c.Domain); err != nil {
		return fmt.Errorf("Domain: %w", err)
	}
	if err := validateUpstream(c.Upstream); err != nil {
		return fmt.Errorf("Upstream: %w", err)
	}

	for _, asset := range c.CoreAssets {
		if err := validateResourcePath(asset); err != nil {
			return fmt.Errorf("CoreAssets[%s]: %w", asset, err)
		}
	}
	for _, prefix := range c.FreshPaths {
		if err := validateResourcePath(prefix); err != nil {
			return fmt.Errorf("FreshPaths[%s]: %w", prefix, err)
		}
	}
	if err := validateResourcePath(c.ConfigResource); err != nil {
		return fmt.Errorf("ConfigResource: %w", err)
	}

	return nil
}

// validateGeneration 拒绝会破坏磁盘布局的世代名（空、路径分隔符、点目录）。
func validateGeneration(name string) error {
	if name == "" {
		return errors.New("不能为空")
	}
	if strings.ContainsAny(name, "/\\") {
		return errors.New("不允许包含路径分隔符")
	}
	if name == "." || name == ".." {
		return errors.New("非法世代名")
	}
	return nil
}

func validateDomain(domain string) error {
	if domain == "" {
		return errors.New("不能为空")
	}
	if strings.Contains(domain, "/") {
		return errors.New("不允许包含路径")
	}
	if strings.Contains(domain, " ") {
		return errors.New("不允许包含空格")
	}
	if strings.HasPrefix(domain, "http") {
		return errors.New("不应包含协议头")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("仅支持 http/https")
	}
	if parsed.Host == "" {
		return errors.New("缺少主机名")
	}
	return nil
}

func validateResourcePath(p string) error {
	if p == "" {
		return errors.New("不能为空")
	}
	if !strings.HasPrefix(p, "/") {
		return errors.New("必须以 / 开头")
	}
	if strings.Contains(p, " ") {
		return errors.New("不允许包含空格")
	}
	return nil
}
