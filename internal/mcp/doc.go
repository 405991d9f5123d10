// Package mcp exposes the ragd question-answering service as an MCP server
// on the stdio transport (github.com/modelcontextprotocol/go-sdk/mcp).
//
// A server is bound to one tenant at startup. Every tool call answers from,
// or writes to, that tenant's documents only.
package mcp
