package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/shell-gate/shell-gate/internal/cache"
	"github.com/shell-gate/shell-gate/internal/logging"
	"github.com/shell-gate/shell-gate/internal/server"
)

// Handler 负责 orchestrate “策略分类 → 缓存/网络仲裁 → 兜底合成” 的全流程，
// 对外暴露 Fiber handler，内部复用共享 http.Client 与磁盘缓存。
type Handler struct {
	client     *http.Client
	logger     *logrus.Logger
	store      cache.Store
	origin     *server.Origin
	classifier *Classifier
}

// NewHandler constructs a gateway handler with shared HTTP client/logger/store.
func NewHandler(
	client *http.Client,
	logger *logrus.Logger,
	store cache.Store,
	origin *server.Origin,
	classifier *Classifier,
) *Handler {
	return &Handler{
		client:     client,
		logger:     logger,
		store:      store,
		origin:     origin,
		classifier: classifier,
	}
}

// Handle 执行同源判定、策略分类和最终响应写出，任何阶段出错都会输出结构化日志。
// 同源请求的网络失败永远不会冒泡给调用方，而是降级到缓存或合成响应。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)

	host := server.HostHeader(c)
	if !h.origin.Controls(host) {
		return h.passThrough(c, host, requestID, started)
	}

	cleanPath := normalizeRequestPath(string(c.Request().URI().Path()))

	if c.Method() != http.MethodGet {
		return h.relayWithoutCache(c, cleanPath, requestID, started)
	}

	switch h.classifier.Classify(cleanPath) {
	case PolicyNetworkFirst:
		return h.handleVolatile(c, cleanPath, requestID, started)
	default:
		return h.handleStatic(c, cleanPath, requestID, started)
	}
}

// handleVolatile 实现 network-first：先回源（带 bypass-cache 指令），成功则
// 存一份副本并转发实时响应；失败则回退到缓存，最后才合成兜底。
func (h *Handler) handleVolatile(c fiber.Ctx, cleanPath, requestID string, started time.Time) error {
	ctx := requestContext(c)
	rawQuery := append([]byte(nil), c.Request().URI().QueryString()...)
	locator := volatileLocator(h.origin.Generation, cleanPath, rawQuery)

	resp, err := h.fetchUpstream(c, cleanPath, rawQuery, true)
	if err == nil {
		defer resp.Body.Close()
		store := resp.StatusCode == http.StatusOK
		return h.relayUpstream(c, ctx, locator, resp, store, PolicyNetworkFirst, cleanPath, requestID, started)
	}
	h.logNetworkFailure(PolicyNetworkFirst, cleanPath, requestID, err)

	cached, cacheErr := h.store.Get(ctx, locator)
	if cacheErr == nil {
		return h.serveCached(c, cached, PolicyNetworkFirst, cleanPath, requestID, started)
	}
	if !errors.Is(cacheErr, cache.ErrNotFound) {
		h.logCacheFailure("cache_get_failed", cleanPath, cacheErr)
	}

	h.logFallback(PolicyNetworkFirst, cleanPath, requestID, started)
	if h.classifier.IsConfigResource(cleanPath) {
		return writeConfigFallback(c)
	}
	return writeUnavailable(c, cleanPath)
}

// handleStatic 实现 cache-first：命中直接回放；未命中回源并存副本；
// 网络失败时导航请求退回缓存的根文档，其余合成 503。
func (h *Handler) handleStatic(c fiber.Ctx, cleanPath, requestID string, started time.Time) error {
	ctx := requestContext(c)
	locator := staticLocator(h.origin.Generation, cleanPath)

	cached, cacheErr := h.store.Get(ctx, locator)
	if cacheErr == nil {
		return h.serveCached(c, cached, PolicyCacheFirst, cleanPath, requestID, started)
	}
	if !errors.Is(cacheErr, cache.ErrNotFound) {
		h.logCacheFailure("cache_get_failed", cleanPath, cacheErr)
	}

	resp, err := h.fetchUpstream(c, cleanPath, c.Request().URI().QueryString(), false)
	if err == nil {
		defer resp.Body.Close()
		store := resp.StatusCode == http.StatusOK
		return h.relayUpstream(c, ctx, locator, resp, store, PolicyCacheFirst, cleanPath, requestID, started)
	}
	h.logNetworkFailure(PolicyCacheFirst, cleanPath, requestID, err)

	if isNavigation(c) {
		root, rootErr := h.store.Get(ctx, staticLocator(h.origin.Generation, "/"))
		if rootErr == nil {
			return h.serveCached(c, root, PolicyCacheFirst, cleanPath, requestID, started)
		}
		if !errors.Is(rootErr, cache.ErrNotFound) {
			h.logCacheFailure("cache_get_failed", "/", rootErr)
		}
	}

	h.logFallback(PolicyCacheFirst, cleanPath, requestID, started)
	return writeUnavailable(c, cleanPath)
}

// relayWithoutCache 处理非 GET 同源请求：缓存完全不参与，网络失败仍然
// 合成 503 而不是把错误抛给调用方。
func (h *Handler) relayWithoutCache(c fiber.Ctx, cleanPath, requestID string, started time.Time) error {
	resp, err := h.fetchUpstream(c, cleanPath, c.Request().URI().QueryString(), false)
	if err != nil {
		h.logNetworkFailure("bypass", cleanPath, requestID, err)
		return writeUnavailable(c, cleanPath)
	}
	defer resp.Body.Close()
	return h.relayUpstream(c, requestContext(c), cache.Locator{}, resp, false, "bypass", cleanPath, requestID, started)
}

// relayUpstream 将上游响应写回客户端；store 为真时正文会先落盘再发出，
// 缓存写入失败只记录告警，不影响响应本身。
func (h *Handler) relayUpstream(
	c fiber.Ctx,
	ctx context.Context,
	locator cache.Locator,
	resp *http.Response,
	store bool,
	policy, cleanPath, requestID string,
	started time.Time,
) error {
	copyResponseHeaders(c, resp.Header)
	h.setGatewayHeaders(c, requestID, false)
	c.Status(resp.StatusCode)

	if c.Method() == http.MethodHead {
		h.logResult(policy, cleanPath, requestID, resp.StatusCode, false, started, nil)
		return nil
	}

	if !store {
		_, err := io.Copy(c.Response().BodyWriter(), resp.Body)
		h.logResult(policy, cleanPath, requestID, resp.StatusCode, false, started, err)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
		}
		return nil
	}

	// 核心资源体量很小（app shell 级别），整体缓冲换取“写缓存失败不破坏响应”。
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.logResult(policy, cleanPath, requestID, resp.StatusCode, false, started, err)
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy read failed: %v", err))
	}

	meta := cache.Metadata{Status: resp.StatusCode, Header: storableHeader(resp.Header)}
	opts := cache.PutOptions{ModTime: extractModTime(resp.Header)}
	if _, putErr := h.store.Put(ctx, locator, meta, bytes.NewReader(body), opts); putErr != nil {
		h.logCacheFailure("cache_put_failed", cleanPath, putErr)
	}

	_, err = c.Response().BodyWriter().Write(body)
	h.logResult(policy, cleanPath, requestID, resp.StatusCode, false, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	return nil
}

// serveCached 用落盘的状态码/头部/正文回放缓存条目。
func (h *Handler) serveCached(
	c fiber.Ctx,
	result *cache.ReadResult,
	policy, cleanPath, requestID string,
	started time.Time,
) error {
	defer result.Reader.Close()

	copyResponseHeaders(c, result.Entry.Metadata.Header)
	h.setGatewayHeaders(c, requestID, true)

	if length := result.Entry.SizeBytes; length > 0 {
		c.Response().Header.SetContentLength(int(length))
	} else {
		c.Response().Header.Del(fiber.HeaderContentLength)
	}

	status := result.Entry.Metadata.Status
	if status == 0 {
		status = http.StatusOK
	}
	c.Status(status)

	if c.Method() == http.MethodHead {
		h.logResult(policy, cleanPath, requestID, status, true, started, nil)
		return nil
	}

	_, err := io.Copy(c.Response().BodyWriter(), result.Reader)
	h.logResult(policy, cleanPath, requestID, status, true, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("read cache failed: %v", err))
	}
	return nil
}

// passThrough 原样转发异源请求：不读缓存、不写缓存、不做兜底。
func (h *Handler) passThrough(c fiber.Ctx, host, requestID string, started time.Time) error {
	ctx := requestContext(c)
	uri := c.Request().URI()
	target := fmt.Sprintf("http://%s%s", host, string(uri.Path()))
	if query := uri.QueryString(); len(query) > 0 {
		target += "?" + string(query)
	}

	req, err := http.NewRequestWithContext(ctx, c.Method(), target, bytesReader(c.Body()))
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("build foreign request failed: %v", err))
	}
	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Host = host

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"action": "pass_through",
			"host":   host,
		}).Warn("foreign_upstream_failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_failed"})
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)

	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	fields := logrus.Fields{
		"action":     "pass_through",
		"host":       host,
		"status":     resp.StatusCode,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("pass_through_failed")
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	h.logger.WithFields(fields).Info("pass_through_complete")
	return nil
}

// fetchUpstream 构造回源请求并执行。bypass 为真时附带 no-cache 指令，
// 要求途中的任何缓存层都取新鲜副本。
func (h *Handler) fetchUpstream(c fiber.Ctx, cleanPath string, rawQuery []byte, bypass bool) (*http.Response, error) {
	ctx := requestContext(c)
	target := h.origin.Resolve(cleanPath, string(rawQuery))

	req, err := http.NewRequestWithContext(ctx, c.Method(), target.String(), bytesReader(c.Body()))
	if err != nil {
		return nil, err
	}

	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Accept-Encoding")
	req.Host = target.Host
	req.Header.Set("Host", target.Host)
	req.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Proto", c.Protocol())

	if bypass {
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
	}

	return h.client.Do(req)
}

func (h *Handler) setGatewayHeaders(c fiber.Ctx, requestID string, cacheHit bool) {
	c.Set("X-Shell-Gate-Upstream", h.origin.UpstreamURL.String())
	if cacheHit {
		c.Set("X-Shell-Gate-Cache-Hit", "true")
	} else {
		c.Set("X-Shell-Gate-Cache-Hit", "false")
	}
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
}

func (h *Handler) logResult(policy, cleanPath, requestID string, status int, cacheHit bool, started time.Time, err error) {
	fields := logging.RequestFields(h.origin.Generation, policy, cleanPath, cacheHit)
	fields["action"] = "gateway"
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("gateway_failed")
		return
	}
	h.logger.WithFields(fields).Info("gateway_complete")
}

func (h *Handler) logNetworkFailure(policy, cleanPath, requestID string, err error) {
	fields := logging.RequestFields(h.origin.Generation, policy, cleanPath, false)
	fields["action"] = "upstream_fetch"
	if requestID != "" {
		fields["request_id"] = requestID
	}
	h.logger.WithError(err).WithFields(fields).Warn("upstream_unreachable")
}

func (h *Handler) logFallback(policy, cleanPath, requestID string, started time.Time) {
	fields := logging.RequestFields(h.origin.Generation, policy, cleanPath, false)
	fields["action"] = "fallback"
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	h.logger.WithFields(fields).Info("fallback_synthesized")
}

func (h *Handler) logCacheFailure(event, cleanPath string, err error) {
	h.logger.WithError(err).WithFields(logrus.Fields{
		"generation": h.origin.Generation,
		"path":       cleanPath,
	}).Warn(event)
}

// storableHeader 复制响应头并剔除 hop-by-hop 字段，保证回放时头部干净。
func storableHeader(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	server.CopyHeaders(dst, src)
	return dst
}

func extractModTime(header http.Header) time.Time {
	if last := header.Get("Last-Modified"); last != "" {
		if parsed, err := http.ParseTime(last); err == nil {
			return parsed.UTC()
		}
	}
	return time.Now().UTC()
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}
