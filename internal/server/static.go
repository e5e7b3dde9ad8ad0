package server

import (
	"net/http"
	"os"
	"path"

	"github.com/dmmcquay/katago-web/internal/logging"
)

// staticFS serves files from the front-end directory. Directories are only
// served through their index.html, so there are no listings.
type staticFS struct {
	root http.FileSystem
}

func (fs staticFS) Open(name string) (http.File, error) {
	f, err := fs.root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		index, err := fs.root.Open(path.Join(name, "index.html"))
		if err != nil {
			f.Close()
			return nil, os.ErrNotExist
		}
		index.Close()
	}
	return f, nil
}

func newStaticHandler(dir string, logger logging.ContextLogger) http.Handler {
	if dir == "" {
		dir = "."
	}
	logger.Info("Serving static files", "dir", dir)
	return http.FileServer(staticFS{root: http.Dir(dir)})
}
