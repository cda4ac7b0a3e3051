package twitchchat

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchTokenFile loads the token from cfg.TokenFile and reloads it on file
// change, forcing a reconnect so the fresh credential is used. Editors and
// secret managers replace files via rename, so removed paths are re-added
// and events are debounced.
func (c *Client) watchTokenFile(ctx context.Context) error {
	if err := c.loadTokenFile(); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(c.cfg.TokenFile); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					if err := w.Add(ev.Name); err != nil {
						slog.Error("token watch re-add", "path", ev.Name, "err", err)
					}
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					if !debounce.Stop() {
						select {
						case <-debounce.C:
						default:
						}
					}
					debounce.Reset(250 * time.Millisecond)
				}
			case <-debounce.C:
				if changed, err := c.reloadToken(); err != nil {
					slog.Error("token reload failed", "path", c.cfg.TokenFile, "err", err)
				} else if changed {
					slog.Info("token reloaded, forcing reconnect", "path", c.cfg.TokenFile)
					select {
					case c.reload <- struct{}{}:
					default:
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("token watch error", "err", err)
			}
		}
	}()
	return nil
}

func (c *Client) loadTokenFile() error {
	_, err := c.reloadToken()
	return err
}

// reloadToken re-reads the token file and reports whether the stored
// token actually changed.
func (c *Client) reloadToken() (bool, error) {
	data, err := os.ReadFile(c.cfg.TokenFile)
	if err != nil {
		return false, err
	}
	token := normalizeToken(strings.TrimSpace(string(data)))
	if token == "" {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if token == c.token {
		return false, nil
	}
	c.token = token
	return true, nil
}
