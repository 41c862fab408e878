// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// Process-wide hot-reload hook list, invoked from ConfigStore.dispatchReload
// whenever SetConfig lands a new snapshot. TriggerHotReloadSync exists so
// tests can observe a reload's effects without racing a goroutine.

package control

import "sync"

var (
	reloadHooksMu sync.Mutex
	reloadHooks   []func()
)

// RegisterReloadHook adds a new component reload listener.
func RegisterReloadHook(fn func()) {
	reloadHooksMu.Lock()
	defer reloadHooksMu.Unlock()
	reloadHooks = append(reloadHooks, fn)
}

// TriggerHotReload dispatches all reload hooks asynchronously.
func TriggerHotReload() {
	reloadHooksMu.Lock()
	hooks := append([]func(){}, reloadHooks...)
	reloadHooksMu.Unlock()
	for _, fn := range hooks {
		go fn()
	}
}

// TriggerHotReloadSync invokes all reload hooks synchronously (for test determinism).
func TriggerHotReloadSync() {
	reloadHooksMu.Lock()
	hooks := append([]func(){}, reloadHooks...)
	reloadHooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}
