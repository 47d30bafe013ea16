package download

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmunix/reeldl/internal/transport"
)

func intPtr(v int) *int { return &v }

func TestStartRequest_Validate(t *testing.T) {
	valid := StartRequest{TMDBID: 550, MediaType: MediaMovie, Title: "Fight Club", Quality: "1080p"}

	tests := []struct {
		name    string
		mutate  func(r *StartRequest)
		wantErr string
	}{
		{"valid movie", func(r *StartRequest) {}, ""},
		{"valid episode", func(r *StartRequest) {
			r.MediaType = MediaTV
			r.SeasonNumber = intPtr(1)
			r.EpisodeNumber = intPtr(3)
		}, ""},
		{"season zero allowed", func(r *StartRequest) {
			r.MediaType = MediaTV
			r.SeasonNumber = intPtr(0)
			r.EpisodeNumber = intPtr(1)
		}, ""},
		{"zero tmdb id", func(r *StartRequest) { r.TMDBID = 0 }, "tmdbId"},
		{"negative tmdb id", func(r *StartRequest) { r.TMDBID = -4 }, "tmdbId"},
		{"bad media type", func(r *StartRequest) { r.MediaType = "anime" }, "mediaType"},
		{"blank title", func(r *StartRequest) { r.Title = "   " }, "title"},
		{"season without episode", func(r *StartRequest) {
			r.MediaType = MediaTV
			r.SeasonNumber = intPtr(1)
		}, "together"},
		{"episode without season", func(r *StartRequest) {
			r.MediaType = MediaTV
			r.EpisodeNumber = intPtr(1)
		}, "together"},
		{"episode on movie", func(r *StartRequest) {
			r.SeasonNumber = intPtr(1)
			r.EpisodeNumber = intPtr(1)
		}, "tv"},
		{"episode zero", func(r *StartRequest) {
			r.MediaType = MediaTV
			r.SeasonNumber = intPtr(1)
			r.EpisodeNumber = intPtr(0)
		}, "episodeNumber"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.Is(err, transport.ErrValidation))

			apiErr, ok := transport.AsAPIError(err)
			require.True(t, ok)
			assert.False(t, apiErr.IsRetryable())
		})
	}
}

func TestStartRequest_Validate_CollectsAllProblems(t *testing.T) {
	err := StartRequest{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tmdbId")
	assert.Contains(t, err.Error(), "mediaType")
	assert.Contains(t, err.Error(), "title")
}

func TestStartRequest_IsEpisode(t *testing.T) {
	assert.False(t, StartRequest{}.IsEpisode())
	assert.False(t, StartRequest{SeasonNumber: intPtr(1)}.IsEpisode())
	assert.True(t, StartRequest{SeasonNumber: intPtr(1), EpisodeNumber: intPtr(2)}.IsEpisode())
}
