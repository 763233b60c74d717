package auth

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/labstack/gommon/log"
)

func (g *Gate) loadKeyFile() error {
	keyData, err := os.ReadFile(g.keyFile)
	if err != nil {
		return fmt.Errorf("reading issuer key: %w", err)
	}
	publicKey, err := DecodePublicKey(string(keyData))
	if err != nil {
		return err
	}
	g.publicKey.Store(publicKey)
	return nil
}

// Watch reloads the issuer key whenever its file changes so the key can be
// rotated without a restart. A file that fails to parse keeps the previous
// key. The returned watcher must be closed by the caller.
func (g *Gate) Watch() (*fsnotify.Watcher, error) {
	if g.keyFile == "" {
		return nil, fmt.Errorf("no issuer key file configured")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	// the directory is watched so that replacing the file by rename is seen
	target := filepath.Clean(g.keyFile)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", target, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := g.loadKeyFile(); err != nil {
					log.Errorf("auth: reloading issuer key: %v", err)
					continue
				}
				log.Infof("auth: issuer key reloaded from %s", target)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("auth: watcher: %v", err)
			}
		}
	}()

	return watcher, nil
}
