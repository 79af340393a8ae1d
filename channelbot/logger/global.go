package logger

import "log/slog"

// Setup installs the custom handler as the process-wide default.
func Setup() {
	slog.SetDefault(slog.New(NewHandler()))
}
