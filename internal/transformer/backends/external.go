package backends

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fentz26/helios/internal/process"
	"github.com/fentz26/helios/internal/transformer"
)

// requireExecutable returns a message when an interpreter cannot be found.
func requireExecutable(what, p string) string {
	if p == "" {
		return what + " is not configured"
	}
	if _, err := exec.LookPath(p); err != nil {
		return what + " not found at " + p
	}
	return ""
}

// external runs one configured tool for a request.
type external struct {
	tools    Tools
	launcher Launcher
}

func (e *external) run(ctx context.Context, label, exe string, args []string) (*transformer.Result, *process.ExecResult, error) {
	out, err := e.launcher.Run(ctx, process.Command{Path: exe, Args: args, Label: label})
	if err != nil {
		res := &transformer.Result{}
		if out != nil {
			res.Stdout, res.Stderr = out.Stdout, out.Stderr
		}
		return res, out, err
	}
	return &transformer.Result{Stdout: out.Stdout, Stderr: out.Stderr}, out, nil
}

func classpathArg(req *transformer.Request, extra ...string) string {
	parts := append([]string(nil), extra...)
	if req.Classpath != nil {
		parts = append(parts, req.Classpath.Files()...)
	}
	return strings.Join(parts, string(os.PathListSeparator))
}

// findOutput locates the file a tool wrote for internalName under dir. Tools
// differ on whether they mirror the package layout, so both are tried before
// falling back to the first file with the extension.
func findOutput(dir, internalName, ext string) ([]byte, bool) {
	candidates := []string{
		filepath.Join(dir, filepath.FromSlash(internalName)+ext),
		filepath.Join(dir, simpleName(internalName)+ext),
	}
	for _, c := range candidates {
		if data, err := os.ReadFile(c); err == nil {
			return data, true
		}
	}

	var found string
	filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || found != "" {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(p, ext) {
			found = p
			return filepath.SkipAll
		}
		return nil
	})
	if found == "" {
		return nil, false
	}
	data, err := os.ReadFile(found)
	return data, err == nil
}
