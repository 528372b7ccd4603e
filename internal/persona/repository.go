package persona

// MemoryRepository defines the storage operations the Engine needs.
// Implemented by storage.Store; tests substitute an in-memory version.
type MemoryRepository interface {
	// GetOrCreateMemory returns the owner's record, creating it with
	// NewMemory defaults when absent. The returned record always has an ID.
	GetOrCreateMemory(owner, defaultPersona string) (Memory, error)

	// UpdateMemory persists the full mutated record.
	UpdateMemory(m Memory) error
}
