package katago

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dmmcquay/katago-web/internal/config"
)

// Installation is what Detect found on this machine.
type Installation struct {
	BinaryPath string
	ModelPath  string
	ConfigPath string
	Problems   []string
}

// Complete reports whether a binary and a model were found.
func (in *Installation) Complete() bool {
	return in.BinaryPath != "" && in.ModelPath != ""
}

// Detect looks for a KataGo binary, network and GTP config in the usual
// places under home and the system directories.
func Detect(home string) *Installation {
	in := &Installation{}

	if p, err := findBinary(home); err != nil {
		in.Problems = append(in.Problems, "binary: "+err.Error())
	} else {
		in.BinaryPath = p
	}
	if p, err := findModel(home); err != nil {
		in.Problems = append(in.Problems, "model: "+err.Error())
	} else {
		in.ModelPath = p
	}
	if p, err := findConfig(home); err != nil {
		in.Problems = append(in.Problems, "config: "+err.Error())
	} else {
		in.ConfigPath = p
	}
	return in
}

// ApplyDetected fills engine paths the configuration leaves unresolved.
// An explicitly configured binary that exists is never replaced.
func ApplyDetected(cfg *config.EngineConfig, in *Installation) {
	if in.BinaryPath != "" {
		if _, err := exec.LookPath(cfg.BinaryPath); err != nil {
			cfg.BinaryPath = in.BinaryPath
		}
	}
	if cfg.ModelPath == "" {
		cfg.ModelPath = in.ModelPath
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = in.ConfigPath
	}
}

func findBinary(home string) (string, error) {
	candidates := []string{
		"katago",
		"/usr/local/bin/katago",
		"/usr/bin/katago",
		"/opt/homebrew/bin/katago",
		"/opt/local/bin/katago",
	}
	if runtime.GOOS == "windows" {
		candidates = append(candidates, `C:\Program Files\KataGo\katago.exe`, `C:\KataGo\katago.exe`)
	}
	if home != "" {
		candidates = append(candidates,
			filepath.Join(home, "bin", "katago"),
			filepath.Join(home, ".local", "bin", "katago"),
			filepath.Join(home, "katago", "katago"),
		)
	}

	for _, path := range candidates {
		if !filepath.IsAbs(path) {
			found, err := exec.LookPath(path)
			if err != nil {
				continue
			}
			path = found
		}
		if isExecutable(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("not found in PATH or common locations")
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return strings.HasSuffix(strings.ToLower(path), ".exe")
	}
	return info.Mode()&0o111 != 0
}

var modelExtensions = []string{".bin.gz", ".bin", ".txt.gz", ".txt"}

func findModel(home string) (string, error) {
	var dirs []string
	if home != "" {
		dirs = append(dirs,
			filepath.Join(home, ".katago"),
			filepath.Join(home, ".katago", "models"),
			filepath.Join(home, "katago"),
			filepath.Join(home, "katago", "models"),
		)
	}
	dirs = append(dirs, "/usr/local/share/katago", "/usr/share/katago", "/opt/katago", "/opt/katago/models")

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			for _, ext := range modelExtensions {
				if strings.HasSuffix(name, ext) && (strings.Contains(name, "model") || strings.HasPrefix(name, "kata")) {
					return filepath.Join(dir, name), nil
				}
			}
		}
	}
	return "", fmt.Errorf("no network file found; download one from https://katagotraining.org/networks/")
}

// GTP configs are preferred; an analysis config also works in gtp mode.
var configNames = []string{"gtp.cfg", "default_gtp.cfg", "gtp_example.cfg", "analysis.cfg"}

func findConfig(home string) (string, error) {
	var dirs []string
	if home != "" {
		dirs = append(dirs, filepath.Join(home, ".katago"), filepath.Join(home, "katago"))
	}
	dirs = append(dirs, "/usr/local/share/katago", "/usr/share/katago", "/etc/katago")

	for _, name := range configNames {
		for _, dir := range dirs {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("no gtp config found; generate one with: katago genconfig -model <model> -output ~/.katago/gtp.cfg")
}

// InstallInstructions explains how to get a working engine on this OS.
func InstallInstructions() string {
	var b strings.Builder

	b.WriteString("KataGo installation\n\n")
	switch runtime.GOOS {
	case "darwin":
		b.WriteString("  brew install katago\n")
	case "linux":
		b.WriteString("  Download a release from https://github.com/lightvector/KataGo/releases\n")
	case "windows":
		b.WriteString("  Download a release from https://github.com/lightvector/KataGo/releases\n")
		b.WriteString("  and extract it to C:\\KataGo\\\n")
	}
	b.WriteString("\nThen:\n")
	b.WriteString("  1. Download a network from https://katagotraining.org/networks/ into ~/.katago/\n")
	b.WriteString("  2. katago genconfig -model <network> -output ~/.katago/gtp.cfg\n")
	b.WriteString("\nOr point katago-web at an existing installation:\n")
	b.WriteString("  export KATAGO_BINARY_PATH=/path/to/katago\n")
	b.WriteString("  export KATAGO_MODEL_PATH=/path/to/network.bin.gz\n")
	b.WriteString("  export KATAGO_CONFIG_PATH=/path/to/gtp.cfg\n")
	return b.String()
}
