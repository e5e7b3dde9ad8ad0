package katago

import (
	"github.com/dmmcquay/katago-web/internal/config"
	"github.com/dmmcquay/katago-web/internal/gtp"
	"github.com/dmmcquay/katago-web/internal/logging"
)

// Launcher spawns the engine process.
type Launcher interface {
	Launch(logger logging.ContextLogger) (*gtp.Process, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(logger logging.ContextLogger) (*gtp.Process, error)

// Launch calls f.
func (f LauncherFunc) Launch(logger logging.ContextLogger) (*gtp.Process, error) {
	return f(logger)
}

// ExecLauncher runs a KataGo binary in GTP mode.
type ExecLauncher struct {
	Path string
	Args []string
}

// NewExecLauncher builds the launcher for cfg.
func NewExecLauncher(cfg *config.EngineConfig) *ExecLauncher {
	return &ExecLauncher{Path: cfg.BinaryPath, Args: cfg.KataGoArgs()}
}

// Launch starts the binary.
func (l *ExecLauncher) Launch(logger logging.ContextLogger) (*gtp.Process, error) {
	logger.Info("Starting engine", "path", l.Path, "args", l.Args)
	return gtp.Start(l.Path, l.Args, logger)
}
