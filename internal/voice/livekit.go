package voice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds the LiveKit deployment credentials.
type Config struct {
	URL       string
	APIKey    string
	APISecret string
	TokenTTL  time.Duration
}

// Client talks to the voice/telephony side of a call session: it mints room
// access tokens and delivers TTS messages to the customer. Message delivery
// is single-attempt; callers decide what a failure means.
type Client struct {
	cfg    Config
	logger *slog.Logger
}

// NewClient creates a Client. A zero TokenTTL defaults to six hours.
func NewClient(cfg Config) *Client {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 6 * time.Hour
	}
	return &Client{cfg: cfg, logger: slog.Default()}
}

// URL returns the LiveKit server endpoint clients connect to.
func (c *Client) URL() string {
	return c.cfg.URL
}

// RoomName maps a call session to its LiveKit room.
func RoomName(sessionID string) string {
	return "call-" + sessionID
}

// RoomInfo is what a frontend needs to join a call session's room.
type RoomInfo struct {
	RoomName   string `json:"roomName"`
	LiveKitURL string `json:"livekitUrl"`
}

// RoomInfo returns connection details for the given session's room.
func (c *Client) RoomInfo(sessionID string) RoomInfo {
	return RoomInfo{
		RoomName:   RoomName(sessionID),
		LiveKitURL: c.cfg.URL,
	}
}

// videoGrant mirrors the LiveKit token grant shape.
type videoGrant struct {
	Room         string `json:"room"`
	RoomJoin     bool   `json:"roomJoin"`
	CanPublish   bool   `json:"canPublish"`
	CanSubscribe bool   `json:"canSubscribe"`
}

type accessClaims struct {
	jwt.RegisteredClaims
	Name  string     `json:"name"`
	Video videoGrant `json:"video"`
}

// AccessToken mints a signed room access token for a participant. This is a
// pass-through capability: no decision logic, just credential plumbing.
func (c *Client) AccessToken(room, participantName, participantIdentity string) (string, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return "", fmt.Errorf("voice credentials not configured")
	}

	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.cfg.APIKey,
			Subject:   participantIdentity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.TokenTTL)),
		},
		Name: participantName,
		Video: videoGrant{
			Room:         room,
			RoomJoin:     true,
			CanPublish:   true,
			CanSubscribe: true,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.cfg.APISecret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// DeliverMessage speaks a message into the customer's call session. The
// transport here logs the utterance in place of a real TTS pipeline; the
// contract (one attempt, error on failure, never retried) is what callers
// depend on.
func (c *Client) DeliverMessage(ctx context.Context, sessionID, text string) error {
	if sessionID == "" {
		return fmt.Errorf("delivering message: empty session id")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delivering message: %w", err)
	}

	c.logger.Info("tts message delivered",
		"room", RoomName(sessionID),
		"message", text,
	)
	return nil
}
