package orchestrator

import (
	"errors"
	"fmt"

	"github.com/phrazzld/reelchain/internal/store"
)

// Common errors returned by the orchestrator.
var (
	// ErrRunNotFound is returned when no live, cached or archived record of a
	// chain run exists.
	ErrRunNotFound = store.ErrRunNotFound

	// ErrTaskNotFound is returned when a known run has no record of the task,
	// typically because its cached result expired.
	ErrTaskNotFound = fmt.Errorf("%w: task run", store.ErrNotFound)

	// ErrShuttingDown is returned by StartChain once Shutdown has begun.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)
