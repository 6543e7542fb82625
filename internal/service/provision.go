package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/quillhq/docpipe/internal/domain"
	"github.com/quillhq/docpipe/internal/store"
)

// Provisioner creates the system-owned derived columns lazily, keyed by
// their reserved keys. Provisioning is idempotent: concurrent callers for
// the same (project, key) pair converge on one column row.
type Provisioner struct {
	cols   store.ColumnStore
	logger *slog.Logger
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(cols store.ColumnStore, log *slog.Logger) *Provisioner {
	return &Provisioner{
		cols:   cols,
		logger: log.With(slog.String("component", "provisioner")),
	}
}

// EnsureThumbnailColumn returns the project's reserved thumbnail column,
// creating it on first use.
func (p *Provisioner) EnsureThumbnailColumn(ctx context.Context, projectID uuid.UUID) (*domain.Column, error) {
	return p.ensure(ctx, projectID,
		domain.ColumnKeyThumbnail,
		"Thumbnail",
		domain.ValueTypeText,
		domain.ProcessorTypeThumbnail,
		&domain.ProcessorConfig{Thumbnail: &domain.ThumbnailConfig{}})
}

// EnsurePageContentColumn returns the project's reserved page-content
// column, creating it on first use.
func (p *Provisioner) EnsurePageContentColumn(ctx context.Context, projectID uuid.UUID) (*domain.Column, error) {
	return p.ensure(ctx, projectID,
		domain.ColumnKeyPageContent,
		"Page Content",
		domain.ValueTypeText,
		domain.ProcessorTypeFetch,
		&domain.ProcessorConfig{Fetch: &domain.FetchConfig{}})
}

// ensure looks the column up by key, inserts it when absent, and on losing
// the insert race re-reads the winner.
func (p *Provisioner) ensure(
	ctx context.Context,
	projectID uuid.UUID,
	key, name string,
	valueType domain.ValueType,
	processorType domain.ProcessorType,
	config *domain.ProcessorConfig,
) (*domain.Column, error) {
	col, err := p.cols.GetByKey(ctx, projectID, key)
	if err == nil {
		return col, nil
	}
	if !store.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to look up column %q: %w", key, err)
	}

	position, err := p.cols.NextPosition(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute column position: %w", err)
	}

	col, err = domain.NewProcessorColumn(projectID, key, name, valueType, processorType, config, position)
	if err != nil {
		return nil, fmt.Errorf("failed to build column %q: %w", key, err)
	}
	col.Hidden = true

	err = p.cols.Create(ctx, col)
	if err == nil {
		p.logger.Info("provisioned column",
			"project_id", projectID,
			"key", key,
			"processor_type", processorType)
		return col, nil
	}
	if !errors.Is(err, store.ErrColumnKeyExists) {
		return nil, fmt.Errorf("failed to create column %q: %w", key, err)
	}

	// Lost the insert race; the winner's row is authoritative.
	col, err = p.cols.GetByKey(ctx, projectID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read column %q after race: %w", key, err)
	}
	return col, nil
}
