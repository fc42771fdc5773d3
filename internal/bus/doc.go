// Package bus holds the subscription table: feature-set names parsed into
// pattern subscriptions (HTTP operation, domain event with optional guard,
// repository observer, state observer) and matched against emitted events.
// The table only matches; spawning handler executions is the runtime's job.
package bus
