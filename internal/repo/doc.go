// Package repo implements the repository mediator: named in-memory
// collections mutated only through Store and Delete, each mutation captured
// as a ChangeEvent for observer routing. Mutations are serialized per
// repository; different repositories mutate concurrently.
package repo
