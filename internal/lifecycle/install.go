package lifecycle

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/shell-gate/shell-gate/internal/cache"
	"github.com/shell-gate/shell-gate/internal/server"
)

// Installer 在启动阶段将 app shell 预热进当前世代。
// 预热策略为 lenient：单个资源抓取失败仅记录告警，不会中断安装。
type Installer struct {
	client *http.Client
	store  cache.Store
	origin *server.Origin
	logger *logrus.Logger
}

// NewInstaller constructs an Installer sharing the gateway HTTP client/store.
func NewInstaller(client *http.Client, store cache.Store, origin *server.Origin, logger *logrus.Logger) *Installer {
	return &Installer{
		client: client,
		store:  store,
		origin: origin,
		logger: logger,
	}
}

// Run 逐个抓取核心资源并写入当前世代，返回 error 仅代表 ctx 被取消。
func (i *Installer) Run(ctx context.Context, assets []string) error {
	stored := 0
	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := i.precache(ctx, asset); err != nil {
			i.logger.WithError(err).WithFields(logrus.Fields{
				"action":     "install",
				"generation": i.origin.Generation,
				"asset":      asset,
			}).Warn("precache_failed")
			continue
		}
		stored++
	}

	i.logger.WithFields(logrus.Fields{
		"action":     "install",
		"generation": i.origin.Generation,
		"requested":  len(assets),
		"stored":     stored,
	}).Info("install_complete")
	return nil
}

func (i *Installer) precache(ctx context.Context, asset string) error {
	target := i.origin.Resolve(asset, "")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), http.NoBody)
	if err != nil {
		return err
	}
	// 预热必须拿到新鲜副本，跳过中间层缓存。
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := i.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	meta := cache.Metadata{Status: resp.StatusCode, Header: storableHeader(resp.Header)}
	locator := cache.Locator{
		Generation: i.origin.Generation,
		Method:     http.MethodGet,
		Path:       asset,
	}
	_, err = i.store.Put(ctx, locator, meta, resp.Body, cache.PutOptions{})
	return err
}

// storableHeader 复制响应头并剔除 hop-by-hop 字段，保证回放时头部干净。
func storableHeader(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	server.CopyHeaders(dst, src)
	return dst
}
