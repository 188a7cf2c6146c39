package storagebackend

import "github.com/aifocal/akidb/internal/akidberr"

// TieringPolicy selects where a collection's vectors live once they have
// been durably appended to the WAL.
type TieringPolicy uint8

const (
	// Memory keeps every live vector in process memory; the WAL is the only
	// durable copy and there is no object-store traffic.
	Memory TieringPolicy = iota + 1
	// MemoryS3 keeps every live vector in memory and additionally uploads
	// it to the object store asynchronously, through the DLQ.
	MemoryS3
	// S3Only treats the object store as the vector's home: only a bounded
	// LRU cache is kept in memory, and reads miss through to the store.
	S3Only
)

// String renders the policy's configuration name.
func (p TieringPolicy) String() string {
	switch p {
	case Memory:
		return "memory"
	case MemoryS3:
		return "memory_s3"
	case S3Only:
		return "s3_only"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the three accepted policies.
func (p TieringPolicy) Valid() bool {
	switch p {
	case Memory, MemoryS3, S3Only:
		return true
	default:
		return false
	}
}

// ParseTieringPolicy maps a configuration string to a TieringPolicy.
func ParseTieringPolicy(s string) (TieringPolicy, error) {
	switch s {
	case "memory":
		return Memory, nil
	case "memory_s3":
		return MemoryS3, nil
	case "s3_only":
		return S3Only, nil
	default:
		return 0, akidberr.New(akidberr.Validation, "storagebackend: unrecognized tiering policy %q", s)
	}
}
