package videosource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	DefaultOEmbedURL = "https://www.youtube.com/oembed"
	DefaultPageURL   = "https://youtu.be/"
)

var (
	ErrVideoNotFound = errors.New("video not found")
	errNotEmbeddable = errors.New("video is not embeddable")
)

// Metadata is display information for a YouTube video.
type Metadata struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Describer looks up Metadata. It asks the oEmbed endpoint first and falls
// back to scraping the watch page for videos that disallow embedding.
type Describer struct {
	HTTPClient *http.Client
	OEmbedURL  string
	PageURL    string
}

func NewDescriber() Describer {
	return Describer{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		OEmbedURL:  DefaultOEmbedURL,
		PageURL:    DefaultPageURL,
	}
}

func (d Describer) Describe(ctx context.Context, v YouTube) (Metadata, error) {
	md, err := d.fromOEmbed(ctx, v.ID)
	if err == nil {
		return md, nil
	}
	if !errors.Is(err, errNotEmbeddable) {
		return Metadata{}, fmt.Errorf("failed to get video metadata with oembed: %w", err)
	}

	md, err = d.fromPage(ctx, v.ID)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to get video metadata from page: %w", err)
	}

	return md, nil
}

func (d Describer) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

func (d Describer) fromOEmbed(ctx context.Context, id string) (Metadata, error) {
	q := url.Values{
		"url":    {"https://www.youtube.com/watch?v=" + id},
		"format": {"json"},
	}
	resp, err := d.get(ctx, d.OEmbedURL+"?"+q.Encode())
	if err != nil {
		return Metadata{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusNotFound:
		return Metadata{}, ErrVideoNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return Metadata{}, errNotEmbeddable
	default:
		return Metadata{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var md Metadata
	if err := json.NewDecoder(resp.Body).Decode(&md); err != nil {
		return Metadata{}, fmt.Errorf("failed to decode oembed response: %w", err)
	}

	return md, nil
}

func (d Describer) fromPage(ctx context.Context, id string) (Metadata, error) {
	resp, err := d.get(ctx, d.PageURL+url.PathEscape(id))
	if err != nil {
		return Metadata{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Metadata{}, ErrVideoNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to parse page: %w", err)
	}

	return Metadata{
		Title:        strings.TrimSuffix(strings.TrimSpace(pageTitle(doc)), " - YouTube"),
		AuthorName:   authorName(doc),
		ThumbnailURL: fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", id),
	}, nil
}

func pageTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return n.FirstChild.Data
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := pageTitle(c); title != "" {
			return title
		}
	}
	return ""
}

// authorName reads the channel name from <link itemprop="name" content="...">.
func authorName(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "link" && attr(n, "itemprop") == "name" {
		if content := attr(n, "content"); content != "" {
			return content
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if name := authorName(c); name != "" {
			return name
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
