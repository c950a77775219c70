package adapters

// NOTE: If build bloat becomes a concern for unused stores
// look into build tags i.e. +build !nohdf5
// or nested packages with init() and main app can include just importing
// import (_ github.com/.../adapters/hdf5)

type BuiltInStoreType = string

const (
	HDF5StoreType   BuiltInStoreType = "hdf5"
	MemoryStoreType BuiltInStoreType = "memory"
	HTTPStoreType   BuiltInStoreType = "http"
)

// RegisterBuiltins registers all built-in stores by default
// or only the specific ones if keys are provided
func RegisterBuiltins(stores ...BuiltInStoreType) {
	if len(stores) == 0 {
		stores = append(stores, HDF5StoreType, MemoryStoreType, HTTPStoreType)
	}

	for _, key := range stores {
		switch key {
		case HDF5StoreType:
			RegisterHDF5()
		case MemoryStoreType:
			RegisterMemory()
		case HTTPStoreType:
			RegisterHTTP(HTTPSource{})
		}
	}
}
