// Package download talks to the download service's job control API and
// defines the job model shared by the stream and tracker packages.
package download

// SourceType is where a job pulls its content from.
type SourceType string

const (
	SourceTorrent SourceType = "torrent"
	SourceYouTube SourceType = "youtube"
	SourceLocal   SourceType = "local"
)

// Status tracks job state as reported by the service.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// MediaType is the kind of title a job downloads.
type MediaType string

const (
	MediaMovie MediaType = "movie"
	MediaTV    MediaType = "tv"
)

// Job is the service's record of a download job.
type Job struct {
	ID         string     `json:"id"`
	SourceType SourceType `json:"sourceType,omitempty"`
	SourceURN  string     `json:"sourceUrn,omitempty"`
	Status     Status     `json:"status"`
	Progress   float64    `json:"progress"`             // 0-100
	Speed      *int64     `json:"speed,omitempty"`      // bytes/sec
	ETA        *int64     `json:"eta,omitempty"`        // seconds remaining
	Peers      *int       `json:"peers,omitempty"`      // torrent jobs only
	Downloaded *int64     `json:"downloaded,omitempty"` // bytes
	Total      *int64     `json:"total,omitempty"`      // bytes
	ErrorState string     `json:"errorState,omitempty"` // set only when Status is error

	// Descriptive fields echoed back from the start request.
	Title         string    `json:"title,omitempty"`
	TMDBID        int64     `json:"tmdbId,omitempty"`
	MediaType     MediaType `json:"mediaType,omitempty"`
	SeasonNumber  *int      `json:"seasonNumber,omitempty"`
	EpisodeNumber *int      `json:"episodeNumber,omitempty"`
}

// StartResponse is returned when a job is created.
type StartResponse struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// StatusResponse acknowledges a pause, resume, or cancel.
type StatusResponse struct {
	Status Status `json:"status"`
}
