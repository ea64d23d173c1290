package repository

import (
	"context"

	"gorm.io/gorm"
)

// Transactor hands repositories a database handle. Writes that must land
// together run inside WithTx; reads use DB.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	DB(ctx context.Context) *gorm.DB
}
