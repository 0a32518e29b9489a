package stage

import (
	"fmt"
	"sync"

	"github.com/stacpipe/stacpipe/internal/stacerrors"
)

// Constructor builds a Stage from a raw, already-decoded config mapping.
// Implementations validate the mapping against their own schema and
// return a ConfigurationError on mismatch; they may also resolve eager
// external inputs (schema downloads, sidecar indexing) here.
type Constructor func(raw map[string]any) (Stage, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[Kind]Constructor)
)

// Register installs the constructor for a stage kind. Each concrete stage
// package calls this from an init() guarded by a blank import in
// internal/stages/register.go, the same registration-by-side-effect
// pattern the teacher uses for its plugin packages.
func Register(kind Kind, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("stage: duplicate registration for kind %q", kind))
	}
	registry[kind] = ctor
}

// New constructs the stage for kind from raw config.
func New(kind Kind, raw map[string]any) (Stage, error) {
	registryMu.RLock()
	ctor, ok := registry[kind]
	registryMu.RUnlock()

	if !ok {
		return nil, stacerrors.NewConfigurationError("module", fmt.Sprintf("unknown stage module %q", kind), nil)
	}
	return ctor(raw)
}
