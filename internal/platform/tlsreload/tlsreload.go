// Package tlsreload serves a TLS certificate that is reloaded whenever its
// files change on disk.
package tlsreload

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Loader holds the current key pair and watches the cert and key files.
type Loader struct {
	certPath string
	keyPath  string

	mu   sync.RWMutex
	cert *tls.Certificate

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once

	// reloaded receives a value after every reload attempt. Tests only.
	reloaded chan error
}

// New loads the key pair and starts watching both files.
func New(certPath, keyPath string) (*Loader, error) {
	return start(certPath, keyPath, nil)
}

func start(certPath, keyPath string, reloaded chan error) (*Loader, error) {
	l := &Loader{
		certPath: certPath,
		keyPath:  keyPath,
		done:     make(chan struct{}),
		reloaded: reloaded,
	}
	if err := l.load(); err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	for _, p := range []string{certPath, keyPath} {
		if err := watcher.Add(p); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch %s: %w", p, err)
		}
	}
	l.watcher = watcher

	go l.watch()
	return l, nil
}

func (l *Loader) load() error {
	cert, err := tls.LoadX509KeyPair(l.certPath, l.keyPath)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.cert = &cert
	l.mu.Unlock()
	return nil
}

func (l *Loader) reload(reason, file string) {
	err := l.load()
	if err != nil {
		log.Error().Err(err).Str("file", file).Str("reason", reason).Msg("certificate reload failed, keeping previous certificate")
	} else {
		log.Info().Str("file", file).Str("reason", reason).Msg("certificate reloaded")
	}
	if l.reloaded != nil {
		select {
		case l.reloaded <- err:
		default:
		}
	}
}

func (l *Loader) watch() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			switch {
			case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
				l.reload("changed", event.Name)
			case event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove):
				// Atomic rotation replaces the file; watch the new one.
				l.watcher.Remove(event.Name)
				time.Sleep(100 * time.Millisecond)
				if err := l.watcher.Add(event.Name); err != nil {
					log.Warn().Err(err).Str("file", event.Name).Msg("re-watch certificate file after rotation")
				}
				l.reload("rotated", event.Name)
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("certificate watcher error")
		case <-l.done:
			return
		}
	}
}

// GetCertificate returns the current certificate. Use it as
// tls.Config.GetCertificate.
func (l *Loader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cert, nil
}

// ServerConfig returns a server TLS config backed by the loader.
func (l *Loader) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: l.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// Close stops watching. It is safe to call more than once.
func (l *Loader) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.watcher.Close()
	})
	return err
}
