// Package embedding adapts OpenAI-compatible text-embedding backends to the
// engine's provider client interface. Requests carry the texts to embed;
// probes embed a single short string to verify reachability.
package embedding
