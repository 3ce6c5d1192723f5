package repository

import (
	"context"
	"errors"
	"fmt"

	"fiscal-offline-go/internal/core/models"
	"fiscal-offline-go/internal/queue"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// jsonNull ersetzt leere JSON-Spalten, da datatypes.JSON kein SQL-NULL einlesen kann
var jsonNull = datatypes.JSON("null")

// OperationRepository ist der dauerhafte queue.Store auf Basis von GORM
type OperationRepository struct {
	db *gorm.DB
}

var _ queue.Store = (*OperationRepository)(nil)

// NewOperationRepository erstellt eine neue Repository-Instanz
func NewOperationRepository(db *gorm.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

// Get holt eine Operation anhand ihrer ID
func (r *OperationRepository) Get(ctx context.Context, id string) (*models.QueuedOperation, error) {
	var op models.QueuedOperation
	result := r.db.WithContext(ctx).First(&op, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", queue.ErrNotFound, id)
		}
		return nil, result.Error
	}
	fromRow(&op)
	return &op, nil
}

// Set legt eine Operation an oder ersetzt sie vollständig
func (r *OperationRepository) Set(ctx context.Context, op *models.QueuedOperation) error {
	if op == nil || op.ID == "" {
		return fmt.Errorf("operation without id")
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(toRow(op)).Error
}

// Remove löscht eine Operation
func (r *OperationRepository) Remove(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.QueuedOperation{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", queue.ErrNotFound, id)
	}
	return nil
}

// List holt alle Operationen nach Erstellungszeit sortiert
func (r *OperationRepository) List(ctx context.Context) ([]*models.QueuedOperation, error) {
	var ops []*models.QueuedOperation
	result := r.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&ops)
	if result.Error != nil {
		return nil, result.Error
	}
	for _, op := range ops {
		fromRow(op)
	}
	return ops, nil
}

func toRow(op *models.QueuedOperation) *models.QueuedOperation {
	row := op.Clone()
	if len(row.Payload) == 0 {
		row.Payload = jsonNull
	}
	if len(row.Headers) == 0 {
		row.Headers = jsonNull
	}
	return row
}

func fromRow(op *models.QueuedOperation) {
	if string(op.Payload) == string(jsonNull) {
		op.Payload = nil
	}
	if string(op.Headers) == string(jsonNull) {
		op.Headers = nil
	}
}
