package db

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
	"github.com/banshee-data/anygrow.bridge/internal/security"
)

// AttachAdminRoutes mounts tailsql and an on-demand backup under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Anygrow sensor DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	stem := security.SanitizeFilename(strings.TrimSuffix(filepath.Base(db.path), filepath.Ext(db.path)))
	name := fmt.Sprintf("anygrow-backup-%s-%d.db", stem, db.clock.Now().Unix())
	backupPath := filepath.Join(os.TempDir(), name)
	if err := security.ValidatePathWithinDirectory(backupPath, os.TempDir()); err != nil {
		http.Error(w, fmt.Sprintf("Invalid backup path: %v", err), http.StatusInternalServerError)
		return
	}

	db.mu.RLock()
	_, err := db.Exec("VACUUM INTO ?", backupPath)
	db.mu.RUnlock()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Logf("failed to stream backup: %v", err)
	}
}
