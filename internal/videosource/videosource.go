// Package videosource classifies user supplied video references.
package videosource

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/sharetube/watchparty/internal/domain"
)

var (
	ErrUnsupported = errors.New("video source cannot be embedded")
	ErrUnknown     = errors.New("unrecognized video source")
)

var (
	youtubeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	filePattern      = regexp.MustCompile(`(?i)\.(mp4|webm|ogg)(\?.*)?$`)
)

// Source is one of YouTube, File, Unsupported or Unknown.
type Source interface {
	isSource()
}

type YouTube struct {
	ID  string
	URL string
}

type File struct {
	URL string
}

type Unsupported struct {
	URL string
}

type Unknown struct {
	URL string
}

func (YouTube) isSource()     {}
func (File) isSource()        {}
func (Unsupported) isSource() {}
func (Unknown) isSource()     {}

func Resolve(raw string) Source {
	raw = strings.TrimSpace(raw)
	u := parseAbsolute(raw)

	if u != nil && strings.Contains(u.Hostname(), "netflix.com") {
		return Unsupported{URL: raw}
	}
	if id := youtubeID(raw, u); id != "" {
		return YouTube{ID: id, URL: raw}
	}
	if filePattern.MatchString(raw) {
		return File{URL: raw}
	}

	return Unknown{URL: raw}
}

// Video converts a playable source into the descriptor carried by load events.
func Video(s Source) (domain.Video, error) {
	switch s := s.(type) {
	case YouTube:
		return domain.Video{Kind: domain.VideoKindYouTube, Locator: s.ID}, nil
	case File:
		return domain.Video{Kind: domain.VideoKindFile, Locator: s.URL}, nil
	case Unsupported:
		return domain.Video{}, ErrUnsupported
	default:
		return domain.Video{}, ErrUnknown
	}
}

func parseAbsolute(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}

	return u
}

func youtubeID(raw string, u *url.URL) string {
	if u != nil {
		host := u.Hostname()
		switch {
		case host == "youtu.be":
			if id, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/"); id != "" {
				return id
			}
		case strings.Contains(host, "youtube.com"):
			if v := u.Query().Get("v"); v != "" {
				return v
			}

			parts := strings.Split(u.Path, "/")
			for i, part := range parts {
				if (part == "shorts" || part == "embed") && i+1 < len(parts) && parts[i+1] != "" {
					return parts[i+1]
				}
			}
		}
	}

	if youtubeIDPattern.MatchString(raw) {
		return raw
	}

	return ""
}
