package domain

import (
	"encoding/json"
	"math"
	"time"
)

const (
	VideoKindYouTube = "youtube"
	VideoKindFile    = "file"
)

// Video describes the shared source. Locator is the platform id for YouTube and the URL for files.
type Video struct {
	Kind       string `json:"kind"`
	Locator    string `json:"locator"`
	PlatformID string `json:"platformId,omitempty"`
}

// UnmarshalJSON accepts both the current form and the legacy {type,url,videoId} form.
func (v *Video) UnmarshalJSON(data []byte) error {
	var aux struct {
		Kind       string `json:"kind"`
		Locator    string `json:"locator"`
		PlatformID string `json:"platformId"`
		Type       string `json:"type"`
		URL        string `json:"url"`
		VideoID    string `json:"videoId"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	v.Kind = firstNonEmpty(aux.Kind, aux.Type)
	v.PlatformID = firstNonEmpty(aux.PlatformID, aux.VideoID)
	v.Locator = aux.Locator
	if v.Locator == "" {
		if v.Kind == VideoKindYouTube && v.PlatformID != "" {
			v.Locator = v.PlatformID
		} else {
			v.Locator = aux.URL
		}
	}

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Seconds is the wire representation of a playback position.
type Seconds float64

// MaxSeconds is the largest position a time.Duration can hold.
const MaxSeconds = Seconds(math.MaxInt64 / int64(time.Second))

// Valid reports whether s is a position Duration can represent without overflow.
func (s Seconds) Valid() bool {
	return s >= 0 && s <= MaxSeconds
}

func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

func SecondsOf(d time.Duration) Seconds {
	return Seconds(d.Seconds())
}
