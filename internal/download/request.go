package download

import (
	"strings"

	"github.com/vmunix/reeldl/internal/transport"
)

// StartRequest is the body of POST /download/start.
type StartRequest struct {
	TMDBID        int64     `json:"tmdbId"`
	MediaType     MediaType `json:"mediaType"`
	Title         string    `json:"title"`
	SourceURN     string    `json:"sourceUrn,omitempty"`
	Quality       string    `json:"quality,omitempty"`
	SeasonNumber  *int      `json:"seasonNumber,omitempty"`
	EpisodeNumber *int      `json:"episodeNumber,omitempty"`
}

// IsEpisode reports whether the request targets a single episode.
func (r StartRequest) IsEpisode() bool {
	return r.SeasonNumber != nil && r.EpisodeNumber != nil
}

// Validate checks the request before it is sent.
// Failures are returned as validation APIErrors so callers see one error taxonomy.
func (r StartRequest) Validate() error {
	var problems []string

	if r.TMDBID <= 0 {
		problems = append(problems, "tmdbId must be a positive integer")
	}
	if r.MediaType != MediaMovie && r.MediaType != MediaTV {
		problems = append(problems, `mediaType must be "movie" or "tv"`)
	}
	if strings.TrimSpace(r.Title) == "" {
		problems = append(problems, "title must not be empty")
	}

	// Season and episode travel together and imply a per-episode TV job.
	switch {
	case (r.SeasonNumber == nil) != (r.EpisodeNumber == nil):
		problems = append(problems, "seasonNumber and episodeNumber must be given together")
	case r.IsEpisode():
		if r.MediaType == MediaMovie {
			problems = append(problems, "season/episode numbers require mediaType \"tv\"")
		}
		if *r.SeasonNumber < 0 {
			problems = append(problems, "seasonNumber must not be negative")
		}
		if *r.EpisodeNumber < 1 {
			problems = append(problems, "episodeNumber must be at least 1")
		}
	}

	if len(problems) > 0 {
		return transport.NewValidationError(strings.Join(problems, "; "))
	}
	return nil
}

type idRequest struct {
	ID string `json:"id"`
}
