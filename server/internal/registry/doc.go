// Package registry tracks every live client connection and its metadata.
//
// The Registry is the only owner of connection handles. Broadcasts iterate a
// point-in-time copy (Snapshot / ForEach), so connections registered or
// removed while a broadcast is in flight never corrupt the set.
package registry
