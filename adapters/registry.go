package adapters

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/brettbedarf/h5browse"
)

var (
	mu         sync.RWMutex
	openers    = map[string]h5browse.StoreOpener{}
	extensions = map[string]string{} // lower-case extension -> store type
	schemes    = map[string]string{} // URL scheme -> store type
)

// Register ties a store opener to a store type key and should be called for each
// store type during app init. exts are file extensions (".h5") or URL schemes
// ("https://") that [Detect] maps back to storeType.
func Register(storeType string, opener h5browse.StoreOpener, exts ...string) {
	mu.Lock()
	defer mu.Unlock()
	openers[storeType] = opener
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if scheme, ok := strings.CutSuffix(ext, "://"); ok {
			schemes[scheme] = storeType
			continue
		}
		extensions[ext] = storeType
	}
}

// Detect picks the registered store type for a path by URL scheme first, then by
// file extension.
func Detect(path string) (string, error) {
	mu.RLock()
	defer mu.RUnlock()
	if scheme, _, ok := strings.Cut(path, "://"); ok {
		if t, ok := schemes[strings.ToLower(scheme)]; ok {
			return t, nil
		}
		return "", fmt.Errorf("no store registered for scheme %q", scheme)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extensions[ext]; ok {
		return t, nil
	}
	return "", fmt.Errorf("no store registered for extension %q of %s", ext, path)
}

// Open opens path with the opener registered for storeType. An empty storeType
// is detected from the path. All expected store types should be registered with
// [Register] before calling this function.
func Open(storeType, path string, mode h5browse.Mode) (h5browse.ContainerStore, error) {
	if storeType == "" {
		t, err := Detect(path)
		if err != nil {
			return nil, err
		}
		storeType = t
	}
	mu.RLock()
	opener, ok := openers[storeType]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no store registered for type %q", storeType)
	}
	return opener(path, mode)
}

// Registered lists the registered store types
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	types := make([]string, 0, len(openers))
	for t := range openers {
		types = append(types, t)
	}
	return types
}
