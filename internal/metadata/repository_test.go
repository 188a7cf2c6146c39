package metadata_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aifocal/akidb/internal/akidberr"
	"github.com/aifocal/akidb/internal/metadata"
	"github.com/aifocal/akidb/internal/metadata/migrations"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *metadata.DB
var testRepo *metadata.Repository

func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "akidb",
			"POSTGRES_PASSWORD": "akidb",
			"POSTGRES_DB":       "akidb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}

	dsn := fmt.Sprintf("postgres://akidb:akidb@%s:%s/akidb?sslmode=disable", host, port.Port())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	testDB, err = metadata.New(ctx, dsn, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create DB: %v\n", err)
		os.Exit(1)
	}
	if err := testDB.RunMigrations(ctx, migrations.FS); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}
	testRepo = metadata.NewRepository(testDB)

	code := m.Run()

	testDB.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestCreateAndGetDatabase(t *testing.T) {
	ctx := context.Background()
	d, err := testRepo.CreateDatabase(ctx, fmt.Sprintf("db-%d", time.Now().UnixNano()))
	require.NoError(t, err)

	got, err := testRepo.GetDatabase(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Name, got.Name)
}

func TestCreateDatabaseDuplicateNameIsValidationError(t *testing.T) {
	ctx := context.Background()
	name := fmt.Sprintf("dup-%d", time.Now().UnixNano())
	_, err := testRepo.CreateDatabase(ctx, name)
	require.NoError(t, err)

	_, err = testRepo.CreateDatabase(ctx, name)
	require.Error(t, err)
	assert.Equal(t, akidberr.Validation, akidberr.KindOf(err))
}

func TestGetMissingDatabaseIsNotFound(t *testing.T) {
	ctx := context.Background()
	_, err := testRepo.GetDatabase(ctx, uuid.New())
	require.Error(t, err)
	assert.Equal(t, akidberr.NotFound, akidberr.KindOf(err))
}

func TestCreateGetDeleteCollection(t *testing.T) {
	ctx := context.Background()
	db, err := testRepo.CreateDatabase(ctx, fmt.Sprintf("coll-db-%d", time.Now().UnixNano()))
	require.NoError(t, err)

	desc, err := testRepo.Create(ctx, metadata.CollectionDescriptor{
		DatabaseID:     db.ID,
		Name:           "docs",
		Dimension:      768,
		DistanceMetric: "cosine",
		EmbeddingModel: "text-embedding-3-small",
	})
	require.NoError(t, err)
	assert.NotEqual(t, db.ID, desc.ID)

	got, err := testRepo.Get(ctx, desc.ID)
	require.NoError(t, err)
	assert.Equal(t, 768, got.Dimension)

	list, err := testRepo.List(ctx, db.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	all, err := testRepo.ListAll(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(all), 1)

	require.NoError(t, testRepo.Delete(ctx, desc.ID))
	_, err = testRepo.Get(ctx, desc.ID)
	require.Error(t, err)
	assert.Equal(t, akidberr.NotFound, akidberr.KindOf(err))
}

func TestDeleteMissingCollectionIsNotFound(t *testing.T) {
	ctx := context.Background()
	err := testRepo.Delete(ctx, uuid.New())
	require.Error(t, err)
	assert.Equal(t, akidberr.NotFound, akidberr.KindOf(err))
}

func TestDuplicateCollectionNameWithinDatabaseIsValidationError(t *testing.T) {
	ctx := context.Background()
	db, err := testRepo.CreateDatabase(ctx, fmt.Sprintf("dup-coll-db-%d", time.Now().UnixNano()))
	require.NoError(t, err)

	_, err = testRepo.Create(ctx, metadata.CollectionDescriptor{
		DatabaseID: db.ID, Name: "widgets", Dimension: 16, DistanceMetric: "euclidean", EmbeddingModel: "m",
	})
	require.NoError(t, err)

	_, err = testRepo.Create(ctx, metadata.CollectionDescriptor{
		DatabaseID: db.ID, Name: "widgets", Dimension: 16, DistanceMetric: "euclidean", EmbeddingModel: "m",
	})
	require.Error(t, err)
	assert.Equal(t, akidberr.Validation, akidberr.KindOf(err))
}
