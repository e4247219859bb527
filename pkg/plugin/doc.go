// Package plugin defines plugin descriptors, the static registry that holds
// them, and the Invoker contract that plugin backends implement.
//
// Descriptors are registered once at startup and never change. The registry
// compiles a JSON Schema for every descriptor so argument payloads can be
// rejected before dispatch. Backends are selected by the descriptor's
// Backend field: "builtin" for in-process handlers, or the name of an MCP
// server.
package plugin
