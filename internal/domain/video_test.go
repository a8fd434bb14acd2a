package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want Video
	}{
		{`{"kind":"youtube","locator":"abc"}`, Video{Kind: "youtube", Locator: "abc"}},
		{`{"type":"youtube","url":"https://youtu.be/dQw4w9WgXcQ","videoId":"dQw4w9WgXcQ"}`, Video{Kind: "youtube", Locator: "dQw4w9WgXcQ", PlatformID: "dQw4w9WgXcQ"}},
		{`{"type":"file","url":"https://cdn/x.mp4"}`, Video{Kind: "file", Locator: "https://cdn/x.mp4"}},
	}

	for _, tt := range tests {
		var v Video
		require.NoError(t, json.Unmarshal([]byte(tt.in), &v))
		assert.Equal(t, tt.want, v)
	}
}

func TestVideoMarshal(t *testing.T) {
	out, err := json.Marshal(Video{Kind: "youtube", Locator: "abc"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"youtube","locator":"abc"}`, string(out))
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, Seconds(1.5).Duration())
	assert.Equal(t, Seconds(2.25), SecondsOf(2250*time.Millisecond))
}
