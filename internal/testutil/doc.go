// Package testutil contains helpers used across tests to reduce boilerplate:
// a scripted model, an agent context builder, failing stores and graph
// fixtures. They are not intended for production usage.
package testutil
