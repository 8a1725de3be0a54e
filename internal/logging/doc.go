// Package logging writes structured JSON logs to a size-rotated file under
// ~/.docrag/logs/ and reads them back for the logs command.
//
// Interactive commands log warnings to the file only unless --debug is set.
// The MCP server never writes to stdout or stderr, see SetupServeMode.
package logging
