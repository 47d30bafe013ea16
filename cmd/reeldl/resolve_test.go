package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vmunix/reeldl/internal/download"
	"github.com/vmunix/reeldl/internal/download/mocks"
)

func TestResolveJob(t *testing.T) {
	jobs := []*download.Job{
		{ID: "3f2a9c", Title: "Heat", Status: download.StatusActive},
		{ID: "77b01d", Title: "Fight Club", Status: download.StatusPaused},
		{ID: "e4c512", Title: "Léon: The Professional", Status: download.StatusQueued},
	}

	tests := []struct {
		name    string
		arg     string
		want    string
		wantErr string
	}{
		{"exact id", "77b01d", "77b01d", ""},
		{"exact title", "Heat", "3f2a9c", ""},
		{"loose title", "fight clb", "77b01d", ""},
		{"accents and articles", "leon professional", "e4c512", ""},
		{"weak match asks", "heist", "", `did you mean "Heat" (id 3f2a9c)`},
		{"unrelated passes through", "abc123", "abc123", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			m := mocks.NewMockController(ctrl)
			m.EXPECT().Incomplete(gomock.Any()).Return(jobs, nil)

			got, err := resolveJob(context.Background(), m, tt.arg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveJob_ListError(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockController(ctrl)
	m.EXPECT().Incomplete(gomock.Any()).Return(nil, errors.New("connection refused"))

	_, err := resolveJob(context.Background(), m, "heat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list jobs")
}
