package metadata

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aifocal/akidb/internal/akidberr"
)

// uniqueViolation is the Postgres error code for a unique-constraint conflict.
const uniqueViolation = "23505"

// Repository is the metadata repository contract described by §6/§4.7:
// descriptor CRUD for databases and collections, backed by Postgres.
type Repository struct {
	db *DB
}

// NewRepository wraps db with the collection/database CRUD surface.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateDatabase persists a new database row, generating its id.
func (r *Repository) CreateDatabase(ctx context.Context, name string) (Database, error) {
	d := Database{ID: uuid.New(), Name: name}
	_, err := r.db.pool.Exec(ctx,
		`INSERT INTO databases (id, name) VALUES ($1, $2)`, d.ID, d.Name)
	if err != nil {
		return Database{}, classifyWriteError(err, "database", name)
	}
	return r.GetDatabase(ctx, d.ID)
}

// GetDatabase retrieves a database by id.
func (r *Repository) GetDatabase(ctx context.Context, id uuid.UUID) (Database, error) {
	var d Database
	err := r.db.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM databases WHERE id = $1`, id,
	).Scan(&d.ID, &d.Name, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Database{}, akidberr.New(akidberr.NotFound, "metadata: database %s not found", id)
		}
		return Database{}, akidberr.Wrap(akidberr.TransientBackend, err, "metadata: get database %s", id)
	}
	return d, nil
}

// ListDatabases returns every database, ordered by creation time.
func (r *Repository) ListDatabases(ctx context.Context) ([]Database, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT id, name, created_at FROM databases ORDER BY created_at`)
	if err != nil {
		return nil, akidberr.Wrap(akidberr.TransientBackend, err, "metadata: list databases")
	}
	defer rows.Close()

	var out []Database
	for rows.Next() {
		var d Database
		if err := rows.Scan(&d.ID, &d.Name, &d.CreatedAt); err != nil {
			return nil, akidberr.Wrap(akidberr.Internal, err, "metadata: scan database row")
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, akidberr.Wrap(akidberr.TransientBackend, err, "metadata: list databases")
	}
	return out, nil
}

// Create persists a new collection descriptor, generating its id.
func (r *Repository) Create(ctx context.Context, desc CollectionDescriptor) (CollectionDescriptor, error) {
	desc.ID = uuid.New()
	_, err := r.db.pool.Exec(ctx,
		`INSERT INTO collections (id, database_id, name, dimension, distance_metric, embedding_model)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		desc.ID, desc.DatabaseID, desc.Name, desc.Dimension, desc.DistanceMetric, desc.EmbeddingModel,
	)
	if err != nil {
		return CollectionDescriptor{}, classifyWriteError(err, "collection", desc.Name)
	}
	return r.Get(ctx, desc.ID)
}

// Delete removes a collection descriptor. Deleting a missing id is a NotFound error.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		return akidberr.Wrap(akidberr.TransientBackend, err, "metadata: delete collection %s", id)
	}
	if tag.RowsAffected() == 0 {
		return akidberr.New(akidberr.NotFound, "metadata: collection %s not found", id)
	}
	return nil
}

// Get retrieves a collection descriptor by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (CollectionDescriptor, error) {
	var d CollectionDescriptor
	err := r.db.pool.QueryRow(ctx,
		`SELECT id, database_id, name, dimension, distance_metric, embedding_model, created_at
		 FROM collections WHERE id = $1`, id,
	).Scan(&d.ID, &d.DatabaseID, &d.Name, &d.Dimension, &d.DistanceMetric, &d.EmbeddingModel, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CollectionDescriptor{}, akidberr.New(akidberr.NotFound, "metadata: collection %s not found", id)
		}
		return CollectionDescriptor{}, akidberr.Wrap(akidberr.TransientBackend, err, "metadata: get collection %s", id)
	}
	return d, nil
}

// List returns every collection belonging to databaseID.
func (r *Repository) List(ctx context.Context, databaseID uuid.UUID) ([]CollectionDescriptor, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT id, database_id, name, dimension, distance_metric, embedding_model, created_at
		 FROM collections WHERE database_id = $1 ORDER BY created_at`, databaseID)
	if err != nil {
		return nil, akidberr.Wrap(akidberr.TransientBackend, err, "metadata: list collections for database %s", databaseID)
	}
	defer rows.Close()
	return scanCollectionRows(rows)
}

// ListAll returns every collection across every database, used by the
// collection service's startup recovery path to reconstruct every backend.
func (r *Repository) ListAll(ctx context.Context) ([]CollectionDescriptor, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT id, database_id, name, dimension, distance_metric, embedding_model, created_at
		 FROM collections ORDER BY created_at`)
	if err != nil {
		return nil, akidberr.Wrap(akidberr.TransientBackend, err, "metadata: list all collections")
	}
	defer rows.Close()
	return scanCollectionRows(rows)
}

func scanCollectionRows(rows pgx.Rows) ([]CollectionDescriptor, error) {
	var out []CollectionDescriptor
	for rows.Next() {
		var d CollectionDescriptor
		if err := rows.Scan(&d.ID, &d.DatabaseID, &d.Name, &d.Dimension, &d.DistanceMetric, &d.EmbeddingModel, &d.CreatedAt); err != nil {
			return nil, akidberr.Wrap(akidberr.Internal, err, "metadata: scan collection row")
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, akidberr.Wrap(akidberr.TransientBackend, err, "metadata: list collections")
	}
	return out, nil
}

// classifyWriteError maps a unique-constraint violation to a Validation
// error callers can surface to the user; anything else is treated as a
// transient backend failure (the caller may retry).
func classifyWriteError(err error, kind, name string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return akidberr.New(akidberr.Validation, "metadata: %s name %q already exists", kind, name)
	}
	return akidberr.Wrap(akidberr.TransientBackend, err, "metadata: create %s %q", kind, name)
}
