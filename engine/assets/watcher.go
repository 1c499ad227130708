package assets

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
)

// Editors tend to save a file with several writes in a row.
const debounceWindow = 50 * time.Millisecond

// ShaderWatcher watches the shader directory tree and fires
// EVENT_CODE_SHADER_CHANGED for every shader file that is created or written.
type ShaderWatcher struct {
	root string

	mutex sync.Mutex
	fired map[string]time.Time

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	fsnotify  *fsnotify.Watcher
	isClosed  atomic.Bool
}

func NewShaderWatcher(root string) (*ShaderWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &ShaderWatcher{
		root:     root,
		fired:    make(map[string]time.Time),
		done:     make(chan struct{}),
		fsnotify: fsWatch,
	}, nil
}

// Start adds the root and all sub-directories and begins forwarding events.
func (sw *ShaderWatcher) Start() error {
	if err := sw.watchRecursive(sw.root); err != nil {
		return err
	}
	sw.wg.Add(1)
	go sw.run()
	core.LogInfo("watching shaders under %s", sw.root)
	return nil
}

// Resolve joins a shader name with the watched root.
func (sw *ShaderWatcher) Resolve(name string) string {
	return ResolveShaderPath(sw.root, name)
}

func (sw *ShaderWatcher) Close() error {
	var err error
	sw.closeOnce.Do(func() {
		sw.isClosed.Store(true)
		close(sw.done)
		sw.wg.Wait()
		err = sw.fsnotify.Close()
	})
	return err
}

func (sw *ShaderWatcher) run() {
	defer sw.wg.Done()
	for {
		select {
		case e, ok := <-sw.fsnotify.Events:
			if !ok {
				return
			}
			sw.handle(e)

		case err, ok := <-sw.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err)

		case <-sw.done:
			return
		}
	}
}

func (sw *ShaderWatcher) handle(e fsnotify.Event) {
	if e.Op&fsnotify.Create != 0 {
		if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
			if err := sw.watchRecursive(e.Name); err != nil {
				core.LogWarn("failed to watch %s: %s", e.Name, err)
			}
			return
		}
	}
	// Can't stat a removed path, so try to drop it from the watch list either way.
	if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		_ = sw.fsnotify.Remove(e.Name)
		return
	}
	if e.Op&(fsnotify.Create|fsnotify.Write) == 0 || !IsShaderFile(e.Name) {
		return
	}
	if !sw.shouldFire(e.Name, time.Now()) {
		return
	}
	core.LogDebug("shader changed: %s", e.Name)
	core.EventFire(core.EventContext{Type: core.EVENT_CODE_SHADER_CHANGED, Data: e.Name})
}

// shouldFire drops repeated events for the same path inside the debounce window.
func (sw *ShaderWatcher) shouldFire(path string, now time.Time) bool {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	if last, ok := sw.fired[path]; ok && now.Sub(last) < debounceWindow {
		return false
	}
	sw.fired[path] = now
	return true
}

// watchRecursive adds all directories under path to the watch list.
func (sw *ShaderWatcher) watchRecursive(path string) error {
	if sw.isClosed.Load() {
		return errors.New("shader watcher already closed")
	}
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		return sw.fsnotify.Add(walkPath)
	})
}

// IsShaderFile matches compiled SPIR-V and GLSL sources.
func IsShaderFile(path string) bool {
	switch filepath.Ext(path) {
	case ".spv", ".vert", ".frag", ".comp", ".glsl":
		return true
	default:
		return false
	}
}

func ResolveShaderPath(root, name string) string {
	if name == "" || filepath.IsAbs(name) || root == "" {
		return name
	}
	return filepath.Join(root, name)
}
