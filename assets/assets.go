// Package assets serves the browser client.
package assets

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

//go:embed public
var embedded embed.FS

// FS returns the public directory: dir on disk when set, so dev rebuilds are
// picked up, otherwise the embedded copy.
func FS(dir string) (fs.FS, error) {
	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
		return os.DirFS(dir), nil
	}
	return fs.Sub(embedded, "public")
}

// Register serves /dist/* from files and index.html for any other unmatched
// GET. The index is read on every request so it follows dev rebuilds too.
func Register(r *gin.Engine, files fs.FS) error {
	dist, err := fs.Sub(files, "dist")
	if err != nil {
		return err
	}
	r.StaticFS("/dist", http.FS(dist))

	r.NoRoute(func(ctx *gin.Context) {
		// missing bundle files also land here
		if strings.HasPrefix(ctx.Request.URL.Path, "/dist/") ||
			(ctx.Request.Method != http.MethodGet && ctx.Request.Method != http.MethodHead) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "not-found"})
			return
		}
		index, err := fs.ReadFile(files, "index.html")
		if err != nil {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "not-found"})
			return
		}
		ctx.Data(http.StatusOK, "text/html; charset=utf-8", index)
	})
	return nil
}
