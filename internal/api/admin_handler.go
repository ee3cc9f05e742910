package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/internal/allocator"
	"github.com/Checker-Finance/ticker-bots/internal/store"
	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

// Registrar is the admin pool maintenance service.
type Registrar interface {
	Register(ctx context.Context, req allocator.RegisterRequest) error
	ChangeAvatar(ctx context.Context, pool model.PoolID, ticker, imageURL string) error
}

// AdminHandler handles the basic-auth protected admin API.
type AdminHandler struct {
	logger    *zap.Logger
	registrar Registrar
}

func NewAdminHandler(logger *zap.Logger, registrar Registrar) *AdminHandler {
	return &AdminHandler{logger: logger, registrar: registrar}
}

// RegisterBot adds a credential to a pool after verifying its token.
func (h *AdminHandler) RegisterBot(c *fiber.Ctx) error {
	var req RegisterBotRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	err := h.registrar.Register(c.UserContext(), req.toRegisterRequest())
	switch {
	case err == nil:
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"client_id": req.ClientID, "status": "registered"})
	case errors.Is(err, allocator.ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, allocator.ErrTokenRejected):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "unable to change the name for " + req.ClientID})
	case errors.Is(err, store.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "client_id or token already registered"})
	default:
		h.logger.Error("api.admin.register_failed", zap.String("client_id", req.ClientID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "unable to add new bot"})
	}
}

// ChangeAvatar replaces the avatar of the bot bound to a ticker.
func (h *AdminHandler) ChangeAvatar(c *fiber.Ctx) error {
	var req AvatarRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	err := h.registrar.ChangeAvatar(c.UserContext(), model.PoolID(req.Pool), req.Ticker, req.URL)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"ticker": model.NormalizeTicker(req.Ticker), "status": "avatar_changed"})
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no bot exists for " + req.Ticker})
	case errors.Is(err, allocator.ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		h.logger.Warn("api.admin.avatar_failed", zap.String("ticker", req.Ticker), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "unable to change avatar"})
	}
}
