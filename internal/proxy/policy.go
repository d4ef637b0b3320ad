package proxy

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/shell-gate/shell-gate/internal/cache"
)

// Policy 以日志友好的字符串形式命名两种缓存策略。
const (
	PolicyCacheFirst   = "cache-first"
	PolicyNetworkFirst = "network-first"
)

// Classifier 按路径决定请求走哪种策略。configResource 与 freshPrefixes
// 均来自配置，声明“必须新鲜”的资源集合。
type Classifier struct {
	configResource string
	freshPrefixes  []string
}

// NewClassifier 构造 Classifier，路径在比较前统一做 Clean。
func NewClassifier(configResource string, freshPrefixes []string) *Classifier {
	normalized := make([]string, 0, len(freshPrefixes))
	for _, prefix := range freshPrefixes {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			normalized = append(normalized, normalizeRequestPath(trimmed))
		}
	}
	return &Classifier{
		configResource: normalizeRequestPath(configResource),
		freshPrefixes:  normalized,
	}
}

// Classify 返回 cleanPath 应使用的策略名。
func (cl *Classifier) Classify(cleanPath string) string {
	if cl.IsConfigResource(cleanPath) {
		return PolicyNetworkFirst
	}
	for _, prefix := range cl.freshPrefixes {
		if cleanPath == prefix || strings.HasPrefix(cleanPath, prefix+"/") {
			return PolicyNetworkFirst
		}
	}
	return PolicyCacheFirst
}

// IsConfigResource 判断 cleanPath 是否为棋盘配置文件本身。
func (cl *Classifier) IsConfigResource(cleanPath string) bool {
	return cl.configResource != "" && cleanPath == cl.configResource
}

// normalizeRequestPath 统一路径写法，空路径折叠为根。
func normalizeRequestPath(raw string) string {
	if raw == "" {
		raw = "/"
	}
	return path.Clean("/" + raw)
}

// staticLocator 构造 cache-first 查找键；静态资源忽略查询串差异。
func staticLocator(generation, cleanPath string) cache.Locator {
	return cache.Locator{
		Generation: generation,
		Method:     http.MethodGet,
		Path:       cleanPath,
	}
}

// volatileLocator 构造 network-first 写入键；查询串折叠为 __qs/<sha1> 片段，
// 保证不同查询的响应互不覆盖。
func volatileLocator(generation, cleanPath string, rawQuery []byte) cache.Locator {
	keyPath := cleanPath
	if len(rawQuery) > 0 {
		sum := sha1.Sum(rawQuery)
		keyPath = fmt.Sprintf("%s/__qs/%s", cleanPath, hex.EncodeToString(sum[:]))
	}
	return cache.Locator{
		Generation: generation,
		Method:     http.MethodGet,
		Path:       keyPath,
	}
}

// isNavigation 识别页面导航请求：浏览器会带 Sec-Fetch-Mode: navigate，
// 退化场景下以 Accept 倾向 text/html 判断。
func isNavigation(c fiber.Ctx) bool {
	if c.Method() != http.MethodGet {
		return false
	}
	if mode := c.Get("Sec-Fetch-Mode"); strings.EqualFold(mode, "navigate") {
		return true
	}
	return strings.Contains(c.Get(fiber.HeaderAccept), "text/html")
}
