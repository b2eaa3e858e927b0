// Package memory pools the scratch buffers the engine copies account and
// book state into before a command mutates it, so a failed command can be
// rolled back without allocating on every call.
package memory
