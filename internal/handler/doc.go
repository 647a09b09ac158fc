// Package handler implements the HTTP surface of the routing engine. It
// decodes embedding requests, hands them to the failover coordinator, and
// maps routing errors to HTTP statuses with the full attempt history.
package handler
