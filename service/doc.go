// Package service is the only write entry point into the engine. It
// coordinates the book sides, the open-orders accounts and the market
// with the store, the journal and the outbox.
//
// Every command runs under one lock against copies of the buffers it
// touches: either all of its changes are committed, or the buffers are
// restored and the command leaves no trace.
package service
