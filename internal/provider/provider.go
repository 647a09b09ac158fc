package provider

import (
	"context"
	"fmt"
)

// Capability is an abstract kind of backend the engine routes between.
type Capability string

const (
	CapabilityEmbedding   Capability = "embedding"
	CapabilityVectorStore Capability = "vectorstore"
)

// ID uniquely identifies a provider instance as "capability/name".
type ID string

// MakeID builds a provider ID from its capability and name.
func MakeID(capability Capability, name string) ID {
	return ID(fmt.Sprintf("%s/%s", capability, name))
}

// Descriptor is the static, immutable description of one backend instance.
// Weight and Quality are declared by configuration, not measured.
type Descriptor struct {
	Capability  Capability
	Name        string
	Weight      float64 // preference weight, > 0
	Quality     float64 // declared quality score, 0..1
	CostPerUnit float64
	CostUnit    string // e.g. "token", "request"
}

// ID returns the unique identifier of the described provider.
func (d Descriptor) ID() ID {
	return MakeID(d.Capability, d.Name)
}

// Request is a capability-level request forwarded to a backend client.
// Payload is interpreted by the client for the given operation.
type Request struct {
	Operation string
	Payload   any
}

// Response is the backend client's reply.
type Response struct {
	Payload any
}

// Client is the I/O adapter for one backend instance. Implementations must
// be safe for concurrent use; Call and Probe must honor ctx cancellation.
type Client interface {
	// Call performs one real request against the backend.
	Call(ctx context.Context, req *Request) (*Response, error)

	// Probe performs a lightweight synthetic reachability check.
	Probe(ctx context.Context) error
}
