package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validTOML = `
ListenPort = 8080
Domain = "play.local"
Upstream = "https://origin.example.org"
Generation = "board-v3"
StoragePath = "./storage"
UpstreamTimeout = "10s"
CoreAssets = ["/", "/index.html", "/app.js", "/app.css"]
FreshPaths = ["/dict"]
ConfigResource = "/config.json"
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validTOML))
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	if cfg.ListenPort != 8080 {
		t.Fatalf("ListenPort 应为 8080，得到 %d", cfg.ListenPort)
	}
	if cfg.Generation != "board-v3" {
		t.Fatalf("Generation 解析错误: %s", cfg.Generation)
	}
	if cfg.UpstreamTimeout.DurationValue() != 10*time.Second {
		t.Fatalf("UpstreamTimeout 解析错误: %v", cfg.UpstreamTimeout.DurationValue())
	}
	if len(cfg.CoreAssets) != 4 {
		t.Fatalf("CoreAssets 应有 4 项，得到 %d", len(cfg.CoreAssets))
	}
	if !filepath.IsAbs(cfg.StoragePath) {
		t.Fatalf("StoragePath 应转为绝对路径: %s", cfg.StoragePath)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	raw := `
Domain = "play.local"
Upstream = "http://origin.example.org"
Generation = "v1"
`
	cfg, err := Load(writeConfig(t, raw))
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.ListenPort != 5000 {
		t.Fatalf("默认端口应为 5000，得到 %d", cfg.ListenPort)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("默认日志级别应为 info，得到 %s", cfg.LogLevel)
	}
	if cfg.UpstreamTimeout.DurationValue() != 30*time.Second {
		t.Fatalf("默认超时应为 30s，得到 %v", cfg.UpstreamTimeout.DurationValue())
	}
	if cfg.ConfigResource != "/config.json" {
		t.Fatalf("默认配置资源路径错误: %s", cfg.ConfigResource)
	}
}

func TestLoadDurationAsSeconds(t *testing.T) {
	raw := strings.Replace(validTOML, `UpstreamTimeout = "10s"`, "UpstreamTimeout = 15", 1)
	cfg, err := Load(writeConfig(t, raw))
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.UpstreamTimeout.DurationValue() != 15*time.Second {
		t.Fatalf("纯秒整数应被解析，得到 %v", cfg.UpstreamTimeout.DurationValue())
	}
}

func TestLoadRejectsMissingGeneration(t *testing.T) {
	raw := strings.Replace(validTOML, `Generation = "board-v3"`, `Generation = ""`, 1)
	if _, err := Load(writeConfig(t, raw)); err == nil {
		t.Fatalf("空世代名应被拒绝")
	}
}

func TestLoadRejectsGenerationWithSeparator(t *testing.T) {
	raw := strings.Replace(validTOML, `Generation = "board-v3"`, `Generation = "../evil"`, 1)
	if _, err := Load(writeConfig(t, raw)); err == nil {
		t.Fatalf("含分隔符的世代名应被拒绝")
	}
}

func TestLoadRejectsBadUpstream(t *testing.T) {
	raw := strings.Replace(validTOML, `Upstream = "https://origin.example.org"`, `Upstream = "ftp://origin"`, 1)
	if _, err := Load(writeConfig(t, raw)); err == nil {
		t.Fatalf("非 http(s) 上游应被拒绝")
	}
}

func TestLoadRejectsRelativeAssetPath(t *testing.T) {
	raw := strings.Replace(validTOML, `"/app.js"`, `"app.js"`, 1)
	if _, err := Load(writeConfig(t, raw)); err == nil {
		t.Fatalf("相对资源路径应被拒绝")
	}
}

func TestLoadRejectsDomainWithScheme(t *testing.T) {
	raw := strings.Replace(validTOML, `Domain = "play.local"`, `Domain = "http://play.local"`, 1)
	if _, err := Load(writeConfig(t, raw)); err == nil {
		t.Fatalf("带协议头的 Domain 应被拒绝")
	}
}

func TestFieldErrorMessage(t *testing.T) {
	err := newFieldError("Generation", "不能为空")
	if err.Error() != "Generation: 不能为空" {
		t.Fatalf("错误信息格式不符: %s", err.Error())
	}
}

// writeConfig 将 TOML 内容写入临时文件并返回路径。
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return path
}
