// Package contractgate provides multi-tenant request routing with
// cross-service contract validation at the boundary.
//
// # Philosophy: Contracts at the Edge
//
// In a service fleet, integration failures rarely come from a service
// being down. They come from a consumer and a provider silently drifting
// apart: a renamed field, a type change, an endpoint that moved.
// ContractGate makes those agreements explicit and checks them in two
// places:
//
// Offline - the contract test runner (cmd/contract-test) validates every
// declared field mapping against the registered service schemas, so a
// breaking change fails CI before it ships.
//
// Online - the gateway (cmd/contractgate) routes tenant traffic to
// upstream services and can enforce request contracts per route, turning
// a would-be integration failure into an immediate, structured 400.
//
// # Packages
//
//   - schema: service schema registry and loaders
//   - mapping: field mappings between consumer and provider payloads
//   - contract: payload and mapping validation, contract definitions
//   - gateway: route table, request pipeline and configuration
//   - gateway/http: the HTTP serving surface and forward loop
//   - config: application configuration
//   - metric: Prometheus instrumentation
//   - health: liveness reporting
//   - errors: classified errors (transient, invalid, fatal)
//   - pkg/retry: bounded exponential backoff
//
// All request-path data structures are immutable snapshots swapped
// atomically on reload; nothing on the hot path takes a lock.
package contractgate
