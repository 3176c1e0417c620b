package recovery

import (
	"context"
	"sync"

	"extension-recovery/internal/common/errors"
)

// Process-wide accessor for call sites that cannot have a Manager injected.
// Nothing inside this package reads it.
var (
	defaultMu      sync.RWMutex
	defaultManager *Manager
)

// Initialize installs m as the process-wide Manager.
func Initialize(m *Manager) *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultManager = m
	return m
}

// Default returns the process-wide Manager, or nil before Initialize.
func Default() *Manager {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultManager
}

// Shutdown removes the process-wide Manager.
func Shutdown() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultManager = nil
}

// HandleExtensionError forwards to the process-wide Manager.
func HandleExtensionError(ctx context.Context, err *errors.ExtensionError, rc map[string]interface{}) *RecoveryResult {
	m := Default()
	if m == nil {
		return failed(TagNoRecovery, "Error recovery manager not initialized")
	}
	return m.HandleError(ctx, err, rc)
}
