// Package provider defines the backend provider catalog: capability kinds,
// immutable provider descriptors, the client interface every backend adapter
// implements, and the registry that holds them.
//
// Descriptors are registered once at startup and never mutated afterwards.
// The registry is read-mostly and safe for concurrent lookup.
package provider
