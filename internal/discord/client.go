package discord

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/internal/httpclient"
	"github.com/Checker-Finance/ticker-bots/internal/rate"
	"github.com/Checker-Finance/ticker-bots/pkg/utils"
)

const (
	DefaultBaseURL = "https://discord.com/api"
	inviteURL      = "https://discord.com/api/oauth2/authorize"
)

// ErrAvatarRejected is returned when Discord accepts the request but does not
// echo an avatar hash back.
var ErrAvatarRejected = errors.New("avatar rejected")

// Config configures the identity client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Identity renames bots and sets their avatars. Every call authenticates with
// the bot's own token, so a successful call also proves the token is live.
type Identity struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	images  *httpclient.Executor
	baseURL string
}

// NewIdentity constructs a Discord identity client.
func NewIdentity(logger *zap.Logger, rateMgr *rate.Manager, cfg Config) *Identity {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	exec := httpclient.New(logger, rateMgr, httpClient, "discord", func(status int, body []byte) error {
		var errResp ErrorResponse
		_ = json.Unmarshal(body, &errResp)
		if errResp.Message == "" {
			return fmt.Errorf("discord returned %d", status)
		}
		return fmt.Errorf("discord returned %d: %s (code %d)", status, errResp.Message, errResp.Code)
	})
	return &Identity{
		logger:  logger,
		exec:    exec,
		images:  httpclient.New(logger, rateMgr, httpClient, "avatar_source", nil),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Rename sets the bot's username to the upper-cased name and returns the
// username Discord echoes back.
func (c *Identity) Rename(ctx context.Context, token, name string) (string, error) {
	var user User
	if err := c.patchMe(ctx, token, ProfileUpdate{Username: strings.ToUpper(name)}, &user); err != nil {
		c.logger.Warn("discord.rename_failed",
			zap.String("token", utils.MaskToken(token)),
			zap.String("name", name),
			zap.Error(err))
		return "", fmt.Errorf("rename bot: %w", err)
	}
	c.logger.Info("discord.renamed",
		zap.String("token", utils.MaskToken(token)),
		zap.String("username", user.Username))
	return user.Username, nil
}

// SetAvatar uploads a data-URI encoded image as the bot's avatar.
func (c *Identity) SetAvatar(ctx context.Context, token, dataURI string) error {
	var user User
	if err := c.patchMe(ctx, token, ProfileUpdate{Avatar: dataURI}, &user); err != nil {
		c.logger.Warn("discord.set_avatar_failed",
			zap.String("token", utils.MaskToken(token)),
			zap.Error(err))
		return fmt.Errorf("set avatar: %w", err)
	}
	if user.Avatar == "" {
		c.logger.Warn("discord.avatar_not_echoed", zap.String("token", utils.MaskToken(token)))
		return ErrAvatarRejected
	}
	return nil
}

// FetchAvatar downloads imageURL and returns it encoded as an avatar data URI.
func (c *Identity) FetchAvatar(ctx context.Context, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	body, err := c.images.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("download avatar: %w", err)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("download avatar: empty body")
	}
	return EncodeAvatar(imageExt(imageURL, http.DetectContentType(body)), body), nil
}

// EncodeAvatar formats raw image bytes as data:image/{ext};base64,...
func EncodeAvatar(ext string, data []byte) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "jpg" {
		ext = "jpeg"
	}
	return "data:image/" + ext + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// InviteURL returns the OAuth2 link that adds the bot to a server.
func InviteURL(clientID string) string {
	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("permissions", "0")
	q.Set("scope", "bot")
	return inviteURL + "?" + q.Encode()
}

func (c *Identity) patchMe(ctx context.Context, token string, update ProfileUpdate, out any) error {
	body, err := json.Marshal(update)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/users/@me", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+token)
	req.Header.Set("Content-Type", "application/json")
	return c.exec.DoJSON(ctx, req, out)
}

// imageExt prefers the extension in the URL path and falls back to the sniffed content type.
func imageExt(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.TrimPrefix(path.Ext(u.Path), "."); ext != "" {
			return ext
		}
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mt, "image/") {
		return strings.TrimPrefix(mt, "image/")
	}
	return "png"
}
