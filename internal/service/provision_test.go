package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/testutils"
)

func TestProvisionerCreatesReservedColumns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		ensure        func(*Provisioner, context.Context, *domain.Project) (*domain.Column, error)
		wantKey       string
		wantName      string
		wantProcessor domain.ProcessorType
	}{
		{
			name: "thumbnail",
			ensure: func(p *Provisioner, ctx context.Context, project *domain.Project) (*domain.Column, error) {
				return p.EnsureThumbnailColumn(ctx, project.ID)
			},
			wantKey:       domain.ColumnKeyThumbnail,
			wantName:      "Thumbnail",
			wantProcessor: domain.ProcessorTypeThumbnail,
		},
		{
			name: "page content",
			ensure: func(p *Provisioner, ctx context.Context, project *domain.Project) (*domain.Column, error) {
				return p.EnsurePageContentColumn(ctx, project.ID)
			},
			wantKey:       domain.ColumnKeyPageContent,
			wantName:      "Page Content",
			wantProcessor: domain.ProcessorTypeFetch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			project, err := domain.NewProject("Provision")
			require.NoError(t, err)

			cols := testutils.NewFakeColumnStore()
			p := NewProvisioner(cols, testutils.Logger())

			col, err := tt.ensure(p, context.Background(), project)
			require.NoError(t, err)

			assert.Equal(t, tt.wantKey, col.Key)
			assert.Equal(t, tt.wantName, col.Name)
			assert.Equal(t, domain.ValueTypeText, col.ValueType)
			assert.Equal(t, domain.ColumnModeProcessor, col.Mode)
			assert.Equal(t, tt.wantProcessor, col.ProcessorType)
			assert.True(t, col.Hidden)

			stored, err := cols.GetByKey(context.Background(), project.ID, tt.wantKey)
			require.NoError(t, err)
			assert.Equal(t, col.ID, stored.ID)
		})
	}
}

func TestProvisionerIsIdempotent(t *testing.T) {
	t.Parallel()

	project, err := domain.NewProject("Provision")
	require.NoError(t, err)

	cols := testutils.NewFakeColumnStore()
	p := NewProvisioner(cols, testutils.Logger())

	first, err := p.EnsureThumbnailColumn(context.Background(), project.ID)
	require.NoError(t, err)

	second, err := p.EnsureThumbnailColumn(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	all, err := cols.ListByProject(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestProvisionerPositionsAfterExistingColumns(t *testing.T) {
	t.Parallel()

	project, err := domain.NewProject("Provision")
	require.NoError(t, err)

	manual, err := domain.NewManualColumn(project.ID, "notes", "Notes", domain.ValueTypeText, 0)
	require.NoError(t, err)

	cols := testutils.NewFakeColumnStore(manual)
	p := NewProvisioner(cols, testutils.Logger())

	col, err := p.EnsureThumbnailColumn(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, col.Position)
}

func TestProvisionerReturnsRaceWinner(t *testing.T) {
	t.Parallel()

	project, err := domain.NewProject("Provision")
	require.NoError(t, err)

	cols := testutils.NewFakeColumnStore()
	p := NewProvisioner(cols, testutils.Logger())

	// A competing writer claims the key between the miss and the insert.
	var winner *domain.Column
	cols.CreateHook = func() {
		cols.CreateHook = nil

		var hookErr error
		winner, hookErr = domain.NewProcessorColumn(project.ID,
			domain.ColumnKeyThumbnail, "Thumbnail",
			domain.ValueTypeText, domain.ProcessorTypeThumbnail,
			&domain.ProcessorConfig{Thumbnail: &domain.ThumbnailConfig{}}, 0)
		require.NoError(t, hookErr)
		require.NoError(t, cols.Create(context.Background(), winner))
	}

	col, err := p.EnsureThumbnailColumn(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, col.ID)

	all, err := cols.ListByProject(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
