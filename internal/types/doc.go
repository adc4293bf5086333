// doc.go — Package documentation for foundational cross-cutting types.

// Package types provides the foundational, zero-dependency types for BugScribe.
//
// This package contains the type definitions shared by the capture, ingest,
// persistence, prompt and report packages:
//   - Telemetry records (console, network, interaction, DOM, screenshot)
//   - Report types (draft, chat messages, page context)
//   - Wire types for inbound events posted by the extension
//
// Design Principle: Zero Dependencies
// This package imports only the Go standard library. It is safe to import from
// any other package without creating circular dependencies.
//
// Architecture Layer: Foundation
//
//	Layer 1: types, buffers (zero deps)
//	Layer 2: Domain packages (capture, persistence, prompt, llm, scheduler)
//	Layer 3: Composite packages (ingest, report, browser)
//	Layer 4: Wiring (server, cmd/bugscribe)
package types
