package api

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

// Allocator serves the public allocation entry points.
type Allocator interface {
	Allocate(ctx context.Context, asset model.AssetType, rawTicker string) model.AllocationResult
}

// Searcher looks up crypto catalog ids by substring.
type Searcher interface {
	Search(ctx context.Context, key string) ([]string, error)
}

// BotHandler handles the public bot allocation API.
type BotHandler struct {
	logger    *zap.Logger
	allocator Allocator
	searcher  Searcher
}

// NewBotHandler creates a BotHandler. searcher is optional; without it the
// search route answers 501.
func NewBotHandler(logger *zap.Logger, allocator Allocator, searcher Searcher) *BotHandler {
	return &BotHandler{logger: logger, allocator: allocator, searcher: searcher}
}

// Crypto allocates a crypto price bot.
func (h *BotHandler) Crypto(c *fiber.Ctx) error {
	return h.allocate(c, model.AssetCrypto)
}

// Stock allocates a stock price bot.
func (h *BotHandler) Stock(c *fiber.Ctx) error {
	return h.allocate(c, model.AssetStock)
}

func (h *BotHandler) allocate(c *fiber.Ctx, asset model.AssetType) error {
	var req AllocateRequest
	if ticker := c.Params("ticker"); ticker != "" {
		// Params alias the request buffer, which fasthttp reuses.
		req.Ticker = utils.CopyString(ticker)
	} else if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	res := h.allocator.Allocate(c.UserContext(), asset, req.Ticker)

	h.logger.Info("api.allocate",
		zap.String("asset_type", asset.String()),
		zap.String("ticker", req.Ticker),
		zap.String("outcome", string(res.Outcome)),
		zap.String("client_id", res.ClientID))

	return c.Status(statusFor(res.Outcome)).JSON(res)
}

// Search lists crypto ids containing the q parameter.
func (h *BotHandler) Search(c *fiber.Ctx) error {
	if h.searcher == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "search is not available"})
	}
	q := strings.ToLower(strings.TrimSpace(c.Query("q")))
	if q == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "q is required"})
	}

	ids, err := h.searcher.Search(c.UserContext(), q)
	if err != nil {
		h.logger.Warn("api.search_failed", zap.String("q", q), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "coin catalog unavailable"})
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(SearchResponse{IDs: ids})
}

// statusFor maps an allocation outcome to its HTTP status.
func statusFor(o model.Outcome) int {
	switch o {
	case model.OutcomeCreated:
		return fiber.StatusCreated
	case model.OutcomeExisting:
		return fiber.StatusOK
	case model.OutcomeInvalidTicker:
		return fiber.StatusNotFound
	case model.OutcomePoolExhausted:
		return fiber.StatusServiceUnavailable
	case model.OutcomeBrandingFailed:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
