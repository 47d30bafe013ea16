package download

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/vmunix/reeldl/internal/metrics"
	"github.com/vmunix/reeldl/internal/transport"
)

//go:generate mockgen -source=client.go -destination=mocks/mock_controller.go -package=mocks

// Controller starts, pauses, resumes, cancels, and inspects jobs.
type Controller interface {
	// Start creates a new job.
	Start(ctx context.Context, req StartRequest) (*StartResponse, error)
	// Pause pauses an active job.
	Pause(ctx context.Context, id string) (*StatusResponse, error)
	// Resume resumes a paused job.
	Resume(ctx context.Context, id string) (*StatusResponse, error)
	// Cancel cancels a job and removes it from the service's active set.
	Cancel(ctx context.Context, id string) (*StatusResponse, error)
	// Status returns the full current record of a job.
	Status(ctx context.Context, id string) (*Job, error)
	// Incomplete returns every job that has not completed.
	Incomplete(ctx context.Context) ([]*Job, error)
}

// Client implements Controller over the service's HTTP API.
// Errors from the transport are returned unchanged; nothing is retried here.
type Client struct {
	api *transport.Client
	log *slog.Logger
}

var _ Controller = (*Client)(nil)

// NewClient creates a job control client.
func NewClient(api *transport.Client, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		api: api,
		log: log.With("component", "download"),
	}
}

// Start validates req and creates a job.
func (c *Client) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	if err := req.Validate(); err != nil {
		observe("start", err)
		return nil, err
	}

	resp, err := transport.Post[StartResponse](ctx, c.api, "/download/start", req)
	if err == nil && resp.ID == "" {
		err = &transport.APIError{Message: ErrEmptyResponseID.Error(), Kind: transport.KindServer, Err: ErrEmptyResponseID}
	}
	observe("start", err)
	if err != nil {
		c.log.Error("start failed", "tmdb_id", req.TMDBID, "title", req.Title, "error", err)
		return nil, err
	}

	c.log.Info("job started", "job_id", resp.ID, "status", resp.Status, "title", req.Title)
	return &resp, nil
}

// Pause pauses a job. Whether pausing a non-active job is an error is up to the service.
func (c *Client) Pause(ctx context.Context, id string) (*StatusResponse, error) {
	return c.control(ctx, "pause", id)
}

// Resume resumes a paused job.
func (c *Client) Resume(ctx context.Context, id string) (*StatusResponse, error) {
	return c.control(ctx, "resume", id)
}

// Cancel cancels a job.
func (c *Client) Cancel(ctx context.Context, id string) (*StatusResponse, error) {
	return c.control(ctx, "cancel", id)
}

func (c *Client) control(ctx context.Context, op, id string) (*StatusResponse, error) {
	if err := requireID(id); err != nil {
		observe(op, err)
		return nil, err
	}

	resp, err := transport.Post[StatusResponse](ctx, c.api, "/download/"+op, idRequest{ID: id})
	observe(op, err)
	if err != nil {
		c.log.Warn(op+" failed", "job_id", id, "error", err)
		return nil, err
	}

	c.log.Info("job "+op+" acknowledged", "job_id", id, "status", resp.Status)
	return &resp, nil
}

// Status fetches one job.
func (c *Client) Status(ctx context.Context, id string) (*Job, error) {
	if err := requireID(id); err != nil {
		observe("status", err)
		return nil, err
	}

	job, err := transport.Get[Job](ctx, c.api, "/download/status/"+url.PathEscape(id))
	observe("status", err)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Incomplete lists jobs that have not completed. Jobs in the error state are
// included because their records persist on the service.
func (c *Client) Incomplete(ctx context.Context) ([]*Job, error) {
	jobs, err := transport.Get[[]*Job](ctx, c.api, "/download/incomplete")
	observe("incomplete", err)
	if err != nil {
		return nil, err
	}

	results := make([]*Job, 0, len(jobs))
	for _, j := range jobs {
		if j == nil || j.Status == StatusCompleted {
			continue
		}
		results = append(results, j)
	}
	return results, nil
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &transport.APIError{Message: ErrEmptyJobID.Error(), Kind: transport.KindValidation, Err: ErrEmptyJobID}
	}
	return nil
}

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		if apiErr, ok := transport.AsAPIError(err); ok {
			result = string(apiErr.Kind)
		}
	}
	metrics.ControlCallsTotal.WithLabelValues(op, result).Inc()
}
