package store

import (
	"context"
	"time"
)

// Record describes one stored upload.
type Record struct {
	ID          string    `json:"id" db:"id" bson:"_id"`
	Filename    string    `json:"filename" db:"filename" bson:"filename"`
	ContentType string    `json:"mime_type" db:"content_type" bson:"content_type"`
	Kind        string    `json:"type" db:"kind" bson:"kind"`
	Size        int64     `json:"size" db:"size" bson:"size"`
	URI         string    `json:"-" db:"uri" bson:"uri"`
	Hash        string    `json:"hash,omitempty" db:"hash" bson:"hash,omitempty"`
	RefCount    int       `json:"ref_count" db:"ref_count" bson:"ref_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at" bson:"created_at"`
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// RecordStore manages upload records with reference counting.
// Reference counts let the upload service delete files no post uses.
type RecordStore interface {
	// Connect prepares the store (schema, indexes).
	Connect(ctx context.Context) error

	// Close releases store resources. The caller owns the underlying client.
	Close(ctx context.Context) error

	// Create stores a new record. ID and CreatedAt are assigned when empty.
	// Returns ErrDuplicateEntry if a record with the same hash exists.
	Create(ctx context.Context, rec *Record) error

	// Get retrieves a record by ID.
	Get(ctx context.Context, id string) (*Record, error)

	// GetByHash finds a record by content hash for deduplication.
	// Returns ErrNotFound if no record with the hash exists.
	GetByHash(ctx context.Context, hash string) (*Record, error)

	// IncrementRef atomically increments the reference count.
	IncrementRef(ctx context.Context, id string) error

	// DecrementRefAndDeleteIfZero atomically decrements the reference count
	// and deletes the record if the count reaches zero.
	// Returns (true, uri) if deleted, (false, "") if not deleted.
	DecrementRefAndDeleteIfZero(ctx context.Context, id string) (deleted bool, uri string, err error)

	// DeleteIfUnreferenced atomically deletes the record if its reference count is zero.
	// Returns ErrInUse if the record is referenced.
	DeleteIfUnreferenced(ctx context.Context, id string) (uri string, err error)

	// ListUnreferenced returns up to limit records with a zero reference count
	// created before the cutoff, oldest first.
	ListUnreferenced(ctx context.Context, before time.Time, limit int) ([]*Record, error)
}
