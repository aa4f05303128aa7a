package config

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Tool describes an external program found on this machine.
type Tool struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Version string `json:"version,omitempty"`
}

// DetectTools fills unset java and python paths from $PATH and
// returns what it found. Configured values are left alone.
func (c *Config) DetectTools() []Tool {
	var found []Tool

	if c.Tools.Java == "" {
		if t := detectJava(); t != nil {
			c.Tools.Java = t.Path
			found = append(found, *t)
		}
	}
	if c.Tools.Python == "" {
		if t := detectPython(); t != nil {
			c.Tools.Python = t.Path
			found = append(found, *t)
		}
	}
	return found
}

func detectJava() *Tool {
	if home := os.Getenv("JAVA_HOME"); home != "" {
		p := filepath.Join(home, "bin", "java")
		if fileExists(p) {
			return &Tool{Name: "java", Path: p}
		}
	}
	if path, err := exec.LookPath("java"); err == nil {
		return &Tool{Name: "java", Path: path}
	}
	return nil
}

func detectPython() *Tool {
	// Krakatau runs on either interpreter name.
	for _, name := range []string{"python3", "python"} {
		if path, err := exec.LookPath(name); err == nil {
			return &Tool{Name: name, Path: path, Version: getCommandVersion(path, "--version")}
		}
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func getCommandVersion(cmd string, flag string) string {
	out, err := exec.Command(cmd, flag).CombinedOutput()
	if err != nil {
		return ""
	}
	version := strings.TrimSpace(string(out))
	// Take first line only
	if idx := strings.Index(version, "\n"); idx > 0 {
		version = version[:idx]
	}
	return version
}
