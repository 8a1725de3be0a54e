package logging

import (
	"log/slog"
)

// SetupServeMode configures logging for the MCP stdio server.
//
// stdout carries JSON-RPC frames exclusively, so stderr output is forced off
// and everything goes to the log file. The logger also becomes slog's default
// so stray slog calls in dependencies cannot reach the terminal.
func SetupServeMode(cfg Config) (*slog.Logger, func(), error) {
	cfg.WriteToStderr = false

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	logger.Info("serve_logging_ready",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))
	return logger, cleanup, nil
}
