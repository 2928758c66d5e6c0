package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInit_WritesBothSinks(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	saved := log.Logger
	defer func() {
		log.Logger = saved
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}()

	if err := Init(Options{Verbose: true, Dir: dir, Console: &console}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	log.Debug().Str("item", "dotnet/runtime#1").Msg("hello from the test")

	if !strings.Contains(console.String(), "hello from the test") {
		t.Errorf("Console output missing message: %q", console.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("Log file not written: %v", err)
	}
	if !strings.Contains(string(data), `"item":"dotnet/runtime#1"`) {
		t.Errorf("Log file missing structured field: %s", data)
	}
}

func TestInit_InfoLevelDropsDebug(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	saved := log.Logger
	defer func() {
		log.Logger = saved
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}()

	if err := Init(Options{Dir: dir, Console: &console}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	if strings.Contains(console.String(), "hidden") {
		t.Error("Debug message leaked at info level")
	}
	if !strings.Contains(console.String(), "shown") {
		t.Error("Info message missing")
	}
}

func TestInit_UnwritableDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if err := Init(Options{Dir: filepath.Join(file, "logs"), Console: &bytes.Buffer{}}); err == nil {
		t.Error("Expected an error for a log directory below a regular file")
	}
}
