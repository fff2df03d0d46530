package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Runtime is the live view of the reloadable configuration keys. The
// aggregator consults it on every call, so a config-file edit takes
// effect without a restart.
type Runtime struct {
	mu        sync.RWMutex
	mode      string
	fbEnabled bool

	v *viper.Viper
}

func newRuntime(v *viper.Viper) *Runtime {
	r := &Runtime{v: v}
	r.refresh()
	return r
}

// EbayMode returns the current primary-marketplace retrieval mode.
func (r *Runtime) EbayMode() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// FacebookEnabled reports whether the social marketplace is consulted.
func (r *Runtime) FacebookEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fbEnabled
}

// SetEbayMode overrides the mode at runtime, e.g. from the control API.
func (r *Runtime) SetEbayMode(mode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
}

// SetFacebookEnabled toggles the social marketplace at runtime.
func (r *Runtime) SetFacebookEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fbEnabled = enabled
}

func (r *Runtime) reload(fsnotify.Event) {
	r.refresh()
}

func (r *Runtime) refresh() {
	mode := r.v.GetString("ebay.mode")
	fbEnabled := r.v.GetBool("marketplaces.facebook_enabled")

	r.mu.Lock()
	r.mode = mode
	r.fbEnabled = fbEnabled
	r.mu.Unlock()
}
