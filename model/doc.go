// Package model defines the provider-agnostic abstractions for talking to
// language models inside statemesh.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Express constrained answers (closed choices, structured tool inputs) as
//     a JSON schema that every provider maps onto its native mechanism
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so agents remain decoupled from vendor SDKs.
package model
