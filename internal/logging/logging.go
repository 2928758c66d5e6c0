package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the name of the rotating log file inside the log directory.
const FileName = "workgraph.log"

// Options control logger initialisation.
type Options struct {
	Verbose bool
	// Dir overrides LOGS_FOLDER.
	Dir string
	// Console receives human-readable output. Defaults to os.Stderr.
	Console io.Writer
}

// Init initializes the global logger with dual sinks: the console and a
// rotating file.
func Init(opts Options) error {
	// Init runs before config.Load, so pick up LOGS_FOLDER from the binary's .env here.
	exePath, exeErr := os.Executable()
	if exeErr == nil {
		_ = godotenv.Load(filepath.Join(filepath.Dir(exePath), ".env"))
	}

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	console := opts.Console
	noColor := true
	if console == nil {
		console = os.Stderr
		noColor = !(isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))
	}
	consoleWriter := zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}

	logDir := opts.Dir
	if logDir == "" {
		logDir = os.Getenv("LOGS_FOLDER")
	}
	if logDir == "" {
		if exeErr == nil {
			logDir = filepath.Join(filepath.Dir(exePath), "logs")
		} else {
			logDir = "logs"
		}
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %q: %w", logDir, err)
	}
	testFile := filepath.Join(logDir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		return fmt.Errorf("log directory %q is not writable: %w", logDir, err)
	}
	_ = os.Remove(testFile)

	fileWriter := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, FileName),
		MaxSize:    16, // megabytes
		MaxBackups: 8,
		MaxAge:     90, // days
		Compress:   true,
	}

	multi := zerolog.MultiLevelWriter(io.Writer(consoleWriter), fileWriter)
	log.Logger = zerolog.New(multi).
		With().
		Timestamp().
		Logger()
	return nil
}
