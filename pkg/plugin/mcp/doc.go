// Package mcp serves plugins hosted on Model Context Protocol servers.
//
// Each configured server becomes one plugin backend. At startup the client
// lists the server's tools and turns each into a plugin.Descriptor whose
// Backend is the server name; calls are forwarded with tools/call.
// Connection and transport failures are reported as transient, tool-level
// errors (IsError results) as permanent.
package mcp
