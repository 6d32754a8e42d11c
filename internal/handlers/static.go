package handlers

import (
	"net/http"
	"os"
	"path/filepath"
)

// SPA serves the pre-built dashboard bundle from dir.
// Any path that does not match a real file falls back to index.html,
// so the client side router owns unknown routes.
func SPA(dir string) http.Handler {
	fileServer := http.FileServer(http.Dir(dir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Clean with a leading slash so '..' can't escape the bundle dir
		name := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))

		info, err := os.Stat(name)
		if err != nil || info.IsDir() {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}

		fileServer.ServeHTTP(w, r)
	})
}
