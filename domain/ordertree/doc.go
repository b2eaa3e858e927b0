// Package ordertree implements the order book storage used by the
// matching engine: a crit-bit binary tree whose nodes live in a fixed
// arena of 88-byte slots inside a single byte buffer.
//
// Nodes are addressed by NodeHandle (a slot index), never by pointer, so
// a whole book side can be persisted and reloaded as raw bytes. Every
// operation is single-writer and bounded by the tree depth; the package
// holds no locks.
package ordertree
