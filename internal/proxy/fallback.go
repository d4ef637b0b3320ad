package proxy

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
)

// EmptyBoardConfig 是棋盘配置文件的兜底正文：离线且从未缓存时返回的
// 最小合法空配置。
const EmptyBoardConfig = `{"letters":"","locale":"pl-PL"}`

const configContentType = "application/json; charset=utf-8"

// writeConfigFallback 合成空配置响应，保持页面在完全离线时仍可初始化。
func writeConfigFallback(c fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, configContentType)
	return c.Status(fiber.StatusOK).SendString(EmptyBoardConfig)
}

// writeUnavailable 合成 503 响应，正文说明哪个资源在离线状态下不可达。
func writeUnavailable(c fiber.Ctx, cleanPath string) error {
	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	return c.Status(fiber.StatusServiceUnavailable).
		SendString(fmt.Sprintf("offline: %s is not cached and the network is unreachable", cleanPath))
}
