package utils

import "sync"

// gdalMu serializes dataset access. GDAL handles are not safe to share across
// goroutines and the workers open many tiles concurrently.
var gdalMu sync.Mutex

func ExecuteWithMutex(fn func()) {
	gdalMu.Lock()
	defer gdalMu.Unlock()
	fn()
}
