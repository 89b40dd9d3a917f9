// Package mcpserver exposes the dispatcher over the Model Context
// Protocol.
//
// Two tools are registered: execute_code runs untrusted code through the
// dispatcher and returns the classified outcome as JSON, and
// execution_history queries the journal. The server supports stdio and
// streamable HTTP transports, selected by configuration.
package mcpserver
