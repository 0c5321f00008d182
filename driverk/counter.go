package driverk

import "sync/atomic"

var bridgeCounter int64

// GetBridgeID a global bridge ID
func GetBridgeID() int64 {
	return atomic.AddInt64(&bridgeCounter, 1)
}
