package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// TileSource fetches one raster tile. Returns the payload and its
// content type so the cache can reject non-image bodies.
type TileSource interface {
	FetchTile(ctx context.Context, z, x, y int) (data []byte, contentType string, err error)
}

// ContentSource fetches an opaque resource payload for pack/guide installs.
type ContentSource interface {
	FetchContent(ctx context.Context, url string) ([]byte, error)
}

// Article is the structured shape returned by the remote article source.
type Article struct {
	Title     string `json:"title"`
	HTML      string `json:"html,omitempty"`
	Plaintext string `json:"plaintext"`
}

// ArticleSource resolves an article by title. Title in, content out; no
// other assumptions about the remote API shape.
type ArticleSource interface {
	FetchArticle(ctx context.Context, title string) (*Article, error)
}

// HTTPTileSource fetches tiles from a {z}/{x}/{y} URL template.
type HTTPTileSource struct {
	client      *Client
	urlTemplate string
}

func NewHTTPTileSource(client *Client, urlTemplate string) *HTTPTileSource {
	return &HTTPTileSource{client: client, urlTemplate: urlTemplate}
}

func (s *HTTPTileSource) FetchTile(ctx context.Context, z, x, y int) ([]byte, string, error) {
	u := strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	).Replace(s.urlTemplate)
	return s.client.FetchBytes(ctx, u)
}

// FetchContent satisfies ContentSource on the shared client.
func (c *Client) FetchContent(ctx context.Context, url string) ([]byte, error) {
	data, _, err := c.FetchBytes(ctx, url)
	return data, err
}

// HTTPArticleSource fetches structured articles from a JSON endpoint.
type HTTPArticleSource struct {
	client  *Client
	baseURL string
}

func NewHTTPArticleSource(client *Client, baseURL string) *HTTPArticleSource {
	return &HTTPArticleSource{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *HTTPArticleSource) FetchArticle(ctx context.Context, title string) (*Article, error) {
	u := fmt.Sprintf("%s/article?title=%s", s.baseURL, url.QueryEscape(title))
	data, _, err := s.client.FetchBytes(ctx, u)
	if err != nil {
		return nil, err
	}

	var article Article
	if err := json.Unmarshal(data, &article); err != nil {
		return nil, fmt.Errorf("malformed article payload for %q: %w", title, err)
	}
	return &article, nil
}
