package backend

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

func (notifier *Notifier) handleError(err error) {
	if err == nil {
		return
	}
	notifier.errorCount.Add(1)
	notifier.logWarn("backend error", map[string]string{
		"error": err.Error(),
	})
	notifier.scheduleRestart(err)
}

func restartDelay(attempt int) time.Duration {
	return restartBaseDelay * time.Duration(1<<attempt)
}

func (notifier *Notifier) scheduleRestart(err error) {
	if notifier == nil {
		return
	}
	notifier.restartMutex.Lock()
	if notifier.restartTimer != nil {
		notifier.restartMutex.Unlock()
		return
	}
	if notifier.restartAttempts >= maxRestartAttempts {
		notifier.restartMutex.Unlock()
		notifier.notifyError(err)
		return
	}
	delay := restartDelay(notifier.restartAttempts)
	notifier.restartAttempts++
	notifier.restartTimer = time.AfterFunc(delay, notifier.performRestart)
	notifier.restartMutex.Unlock()
}

func (notifier *Notifier) performRestart() {
	if notifier == nil {
		return
	}
	restartErr := notifier.restart()

	notifier.restartMutex.Lock()
	notifier.restartTimer = nil
	if restartErr == nil {
		notifier.restartAttempts = 0
		notifier.restartMutex.Unlock()
		return
	}
	notifier.restartMutex.Unlock()

	notifier.logWarn("backend restart failed", map[string]string{
		"error": restartErr.Error(),
	})
	notifier.scheduleRestart(restartErr)
}

func (notifier *Notifier) notifyError(err error) {
	if notifier == nil || notifier.errorHandler == nil || err == nil {
		return
	}
	notifier.errorHandler(err)
}

func (notifier *Notifier) restart() error {
	notifier.mutex.Lock()
	if notifier.closed {
		notifier.mutex.Unlock()
		return nil
	}
	paths := make([]string, 0, len(notifier.watches))
	for path := range notifier.watches {
		paths = append(paths, path)
	}
	notifier.mutex.Unlock()

	replacement, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for _, path := range paths {
		if err := replacement.Add(path); err != nil {
			notifier.logWarn("backend re-add failed", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
		}
	}

	notifier.mutex.Lock()
	if notifier.closed {
		notifier.mutex.Unlock()
		_ = replacement.Close()
		return nil
	}
	previous := notifier.watcher
	notifier.watcher = replacement
	notifier.mutex.Unlock()

	notifier.startForwarder(replacement)
	if previous != nil {
		_ = previous.Close()
	}
	return nil
}
