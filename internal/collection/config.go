package collection

import (
	"strings"
	"time"
	"unicode"

	"github.com/aifocal/akidb/internal/akidberr"
	"github.com/aifocal/akidb/internal/index/hnsw"
	"github.com/aifocal/akidb/internal/objectstore"
	"github.com/aifocal/akidb/internal/storagebackend"
)

const (
	minDimension = 16
	maxDimension = 4096
	maxNameLen   = 255
	maxTopKHard  = 10_000

	maxEmbeddingModelLen = 256
)

// forbiddenNameChars are the single characters the spec's name character class
// excludes: path separators, the null byte, and shell/filesystem metacharacters.
// The two-character sequence ".." is rejected separately by validateName.
const forbiddenNameChars = `/\` + "\x00" + `<>:"|?*`

// Config configures a Service: the shared object store and WAL root every
// collection's storage backend is built against, plus the process-wide
// defaults a per-collection StorageConfig inherits unless overridden.
type Config struct {
	WALRoot         string
	Store           objectstore.Store // may be nil; backends under Memory tiering don't need one
	DefaultPolicy   storagebackend.TieringPolicy
	StorageDefaults storagebackend.Config // CollectionID/WALDir/Store/Policy are overwritten per collection
	HNSW            hnsw.Config
	MaxTopK         int
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxTopK <= 0 || c.MaxTopK > maxTopKHard {
		c.MaxTopK = maxTopKHard
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if !c.DefaultPolicy.Valid() {
		c.DefaultPolicy = storagebackend.Memory
	}
}

// validateName enforces the §6 name constraints: length bound and character
// class. CreateCollection applies it to collection names.
func validateName(kind, name string) error {
	if name == "" {
		return akidberr.New(akidberr.Validation, "collection: %s name must not be empty", kind)
	}
	if len(name) > maxNameLen {
		return akidberr.New(akidberr.Validation, "collection: %s name exceeds %d bytes", kind, maxNameLen)
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, forbiddenNameChars) {
		return akidberr.New(akidberr.Validation, "collection: %s name contains a forbidden character", kind)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return akidberr.New(akidberr.Validation, "collection: %s name contains a control character", kind)
		}
	}
	return nil
}

func validateDimension(dim int) error {
	if dim < minDimension || dim > maxDimension {
		return akidberr.New(akidberr.Validation, "collection: dimension %d out of range [%d, %d]", dim, minDimension, maxDimension)
	}
	return nil
}

func validateEmbeddingModel(model string) error {
	if model == "" {
		return akidberr.New(akidberr.Validation, "collection: embedding_model must not be empty")
	}
	if len(model) > maxEmbeddingModelLen {
		return akidberr.New(akidberr.Validation, "collection: embedding_model exceeds %d bytes", maxEmbeddingModelLen)
	}
	return nil
}
