// Package loader defines an abstraction to load a key from a persistent
// storage. It allows one to either read it from the storage, or to generate a
// new one and stores it for the next time.
//
// The ledger uses it for the wallet of the participants and for the key of the
// sequencer signing the confirmations.
package loader

// Generator is the interface to implement to generate a key.
type Generator interface {
	Generate() ([]byte, error)
}

// Loader is an abstraction to load a key from a storage. It allows for instance
// to load a private key from the disk, or generate it if it doesn't exist.
type Loader interface {
	// LoadOrCreate tries to load the key and returns it if found, otherwise it
	// generates a new one using the generator and stores it.
	LoadOrCreate(Generator) ([]byte, error)

	// Load returns the key if it exists, otherwise an error.
	Load() ([]byte, error)

	// Create generates a new key and stores it. It fails if a key already
	// exists.
	Create(Generator) ([]byte, error)
}
