package store

import (
	"context"

	"dupegraph/internal/models"
)

// RelationshipStore is the read and maintenance surface the API server needs.
// Mutations go through the duplicate action processor.
type RelationshipStore interface {
	Update(ctx context.Context, fn func(*Tx) error) error
	View(ctx context.Context, fn func(*Tx) error) error
	RegisterFiles(ctx context.Context, hashes []string) (int, error)
	GetFile(ctx context.Context, hash string) (models.File, error)
	FileState(ctx context.Context, hash string) (models.FileState, error)
	GetDuplicateGroup(ctx context.Context, hash string) (models.DuplicateGroup, error)
	GetAlternateGroup(ctx context.Context, hash string) (*models.AlternateGroup, error)
	IsKing(ctx context.Context, hash string) (bool, error)
	RelationCounts(ctx context.Context, hash string) (models.RelationCounts, error)
	FilesNeedingSearch(ctx context.Context, limit int) ([]string, error)
	MarkSearched(ctx context.Context, hashes []string) (int, error)
	ListDecisions(ctx context.Context, limit int) ([]models.DecisionLogEntry, error)
	StoreInfo(ctx context.Context) (*StoreInfo, error)
	Export(ctx context.Context, fn func(models.ExportRecord) error) error
	Maintain(ctx context.Context) (*MaintenanceResult, error)
}

var _ RelationshipStore = (*Store)(nil)
