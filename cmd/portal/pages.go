package main

import (
	"io/fs"
	"net/http"

	"github.com/ferro-labs/operator-portal/internal/logging"
	"github.com/ferro-labs/operator-portal/web"
)

// pageHandler serves one embedded HTML page.
func pageHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := fs.ReadFile(web.Pages, name)
		if err != nil {
			logging.FromContext(r.Context()).Error("page not embedded", "page", name, "error", err)
			http.Error(w, "page not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(data)
	}
}
