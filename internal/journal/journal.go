// Package journal keeps a local record of accepted attendance submissions,
// independent of what the remote history later reports.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/puce/registro/internal/attendance"
)

// ErrDuplicateReceipt indicates a receipt with the same ID was already recorded.
var ErrDuplicateReceipt = errors.New("duplicate receipt")

// Receipt is the local proof of one accepted submission.
type Receipt struct {
	ID          string               `json:"id"`
	RecordID    int64                `json:"record"`
	Challenge   attendance.Challenge `json:"challenge"`
	SubmittedAt time.Time            `json:"submitted_at"`
}

// Journal stores receipts.
type Journal interface {
	Record(ctx context.Context, r Receipt) error
	// List returns the receipts of recordID, newest first.
	List(ctx context.Context, recordID int64) ([]Receipt, error)
}
