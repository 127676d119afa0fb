// Package rabbitmq contains the broker core of the gateway.
//
// This package includes:
//   - ConnectionManager: owns the single connection and channel, supervises
//     them with automatic reconnection, and re-declares topology after
//     every successful (re)connect
//   - Topology: idempotent exchange/queue/binding declaration
//   - Publisher: durable publishing with background retry of failed payloads
//   - RetryScheduler: explicit retry tasks under a pluggable RetryPolicy
//
// Recovery never gives up: by default every setup or publish failure is
// retried at a fixed interval for as long as the process runs. Publish
// success is defined as a synchronous accept by the channel; publisher
// confirms are not used, so broker-side acknowledgment is not tracked.
package rabbitmq
