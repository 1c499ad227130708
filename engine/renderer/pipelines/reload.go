package pipelines

import (
	"github.com/hydrogendeuteride/QuaternionEngine-sub001/engine/core"
)

type reloadJob struct {
	name string
	spec GraphicsSpec
	rec  *graphicsRecord
}

func (m *Manager) startWorker() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.done = make(chan struct{})
	go m.workerLoop(m.done)
}

// stopWorker drops queued jobs, waits for the worker to exit and destroys
// anything it finished after the queues were drained.
func (m *Manager) stopWorker() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.pending = nil
	done := m.done
	m.cond.Broadcast()
	m.mu.Unlock()

	<-done

	m.mu.Lock()
	completed := m.completed
	m.completed = nil
	m.inflight = make(map[string]struct{})
	m.mu.Unlock()

	for _, job := range completed {
		job.rec.destroy()
	}
}

func (m *Manager) workerLoop(done chan struct{}) {
	defer close(done)
	for {
		m.mu.Lock()
		for m.running && len(m.pending) == 0 {
			m.cond.Wait()
		}
		if !m.running {
			m.mu.Unlock()
			return
		}
		job := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		rec, err := m.buildGraphics(job.spec)

		m.mu.Lock()
		if err != nil {
			delete(m.inflight, job.name)
			core.LogWarn("hot reload of pipeline %q failed, keeping the old one: %v", job.name, err)
		} else {
			job.rec = rec
			m.completed = append(m.completed, job)
		}
		m.mu.Unlock()
	}
}

// HotReloadChanged queues a rebuild of every graphics pipeline whose shader
// files changed since it was built. A pipeline with a rebuild in flight is
// skipped.
func (m *Manager) HotReloadChanged() {
	var jobs []reloadJob
	for name, rec := range m.graphics {
		changed := false
		if t := m.modTime(rec.spec.VertexShader); !rec.vertTime.IsZero() && !t.IsZero() && !t.Equal(rec.vertTime) {
			changed = true
		}
		if t := m.modTime(rec.spec.FragmentShader); !rec.fragTime.IsZero() && !t.IsZero() && !t.Equal(rec.fragTime) {
			changed = true
		}
		if changed {
			jobs = append(jobs, reloadJob{name: name, spec: rec.spec})
		}
	}
	if len(jobs) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	queued := 0
	for _, job := range jobs {
		if _, busy := m.inflight[job.name]; busy {
			continue
		}
		m.inflight[job.name] = struct{}{}
		m.pending = append(m.pending, job)
		queued++
	}
	if queued > 0 {
		m.cond.Broadcast()
	}
}

// PumpMainThread installs the pipelines the worker finished. The replaced
// pipeline is destroyed here; a rebuild for a name that was unregistered in
// the meantime is destroyed right away.
func (m *Manager) PumpMainThread() {
	m.mu.Lock()
	completed := m.completed
	m.completed = nil
	m.mu.Unlock()
	if len(completed) == 0 {
		return
	}

	for _, job := range completed {
		old, ok := m.graphics[job.name]
		if !ok {
			job.rec.destroy()
			continue
		}
		old.destroy()
		m.graphics[job.name] = job.rec
		core.LogInfo("reloaded graphics pipeline %q", job.name)
	}

	m.mu.Lock()
	for _, job := range completed {
		delete(m.inflight, job.name)
	}
	m.mu.Unlock()
}

// Reloading reports whether a rebuild of name is queued or running.
func (m *Manager) Reloading(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[name]
	return ok
}
