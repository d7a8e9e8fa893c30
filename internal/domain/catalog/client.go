// Package catalog is the client for the game catalog service, the system
// of record for playable games and their raw HTML content.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/eduforge/gamehost/internal/infrastructure/config"
	"github.com/eduforge/gamehost/internal/infrastructure/logging"
	"github.com/eduforge/gamehost/internal/infrastructure/resilience"
)

var (
	// ErrNotFound marks an unknown game ID.
	ErrNotFound = errors.New("game not found")
	// ErrNotHTML marks game content that is not an HTML document.
	ErrNotHTML = errors.New("game content is not html")
)

// Game is a catalog entry.
type Game struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Subject     string   `json:"subject"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	// EstimatedMinutes is an authoring hint shown before opening a view.
	EstimatedMinutes int `json:"estimatedMinutes,omitempty"`
}

// Client talks to the catalog service. Outbound calls run through a
// circuit breaker so a down catalog degrades fast instead of piling up
// blocked player opens.
type Client struct {
	http    *resty.Client
	breaker *resilience.Breaker
	log     *logging.Logger
}

// NewClient builds a catalog client from configuration.
func NewClient(cfg config.CatalogConfig, log *logging.Logger) *Client {
	l := log.Named("catalog")
	return &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetRetryCount(2),
		breaker: resilience.New("catalog", resilience.Settings{
			OnStateChange: func(name string, from, to resilience.State) {
				l.Warn("breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		log: l,
	}
}

// List fetches all playable games.
func (c *Client) List(ctx context.Context) ([]Game, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var games []Game
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&games).
			Get("/games")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("catalog list: status %d", resp.StatusCode())
		}
		return games, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]Game), nil
}

// Game fetches one catalog entry. A missing game is ErrNotFound and does
// not count against the breaker.
func (c *Client) Game(ctx context.Context, gameID string) (*Game, error) {
	var notFound bool
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var game Game
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&game).
			Get("/games/" + gameID)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() == http.StatusNotFound {
			notFound = true
			return (*Game)(nil), nil
		}
		if resp.IsError() {
			return nil, fmt.Errorf("catalog get: status %d", resp.StatusCode())
		}
		return &game, nil
	})
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, ErrNotFound
	}
	return out.(*Game), nil
}

// Content fetches the raw HTML for a game and verifies it actually is
// HTML; catalog entries occasionally point at archives or images by
// mistake, and those must never reach a player surface.
func (c *Client) Content(ctx context.Context, gameID string) (string, error) {
	var notFound bool
	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			Get("/games/" + gameID + "/content")
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() == http.StatusNotFound {
			notFound = true
			return "", nil
		}
		if resp.IsError() {
			return nil, fmt.Errorf("catalog content: status %d", resp.StatusCode())
		}

		body := resp.Body()
		if kind := mimetype.Detect(body); !kind.Is("text/html") {
			c.log.Warn("non-html game content rejected",
				zap.String("game_id", gameID),
				zap.String("detected", kind.String()),
			)
			return nil, ErrNotHTML
		}
		return string(body), nil
	})
	if err != nil {
		return "", err
	}
	if notFound {
		return "", ErrNotFound
	}
	return out.(string), nil
}
