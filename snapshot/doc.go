// Package snapshot writes and loads point-in-time copies of the engine
// state: the market record, both book sides and every open-orders account
// as the raw buffers the store keeps. A snapshot seeds an empty store so
// a node can start without replaying its history.
package snapshot
