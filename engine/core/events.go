package core

import (
	"sync"
)

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Resized/resolution changed from the OS.
	// Data: *SystemEvent with the new framebuffer size.
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	// A shader source or binary changed on disk.
	// Data: string, the path that changed.
	EVENT_CODE_SHADER_CHANGED SystemEventCode = 0x10

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// EventContext travels from EventFire to every registered callback.
type EventContext struct {
	Type SystemEventCode
	Data interface{}
}

// SystemEvent carries window state changes.
type SystemEvent struct {
	WindowWidth  uint32
	WindowHeight uint32
}

type FnOnEvent func(context EventContext)

const eventQueueSize = 256

type eventSystemState struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]FnOnEvent
	queue      chan EventContext
	done       chan struct{}
	closeOnce  sync.Once
}

var eventState *eventSystemState

// EventSystemInitialize creates the bus. Returns false when already initialized.
func EventSystemInitialize() bool {
	if eventState != nil {
		return false
	}
	eventState = &eventSystemState{
		registered: make(map[SystemEventCode][]FnOnEvent),
		queue:      make(chan EventContext, eventQueueSize),
		done:       make(chan struct{}),
	}
	return true
}

// EventSystemShutdown stops ProcessEvents and drops every registration.
func EventSystemShutdown() error {
	if eventState == nil {
		return nil
	}
	s := eventState
	s.closeOnce.Do(func() { close(s.done) })
	s.mu.Lock()
	s.registered = make(map[SystemEventCode][]FnOnEvent)
	s.mu.Unlock()
	eventState = nil
	return nil
}

// EventRegister adds a listener for the given code.
func EventRegister(code SystemEventCode, onEvent FnOnEvent) bool {
	if eventState == nil || onEvent == nil {
		return false
	}
	eventState.mu.Lock()
	defer eventState.mu.Unlock()
	eventState.registered[code] = append(eventState.registered[code], onEvent)
	return true
}

// EventUnregisterAll drops every listener of the given code.
func EventUnregisterAll(code SystemEventCode) {
	if eventState == nil {
		return
	}
	eventState.mu.Lock()
	defer eventState.mu.Unlock()
	delete(eventState.registered, code)
}

// EventFire queues the event. It never blocks: when the queue is full the
// event is dropped and a warning is logged.
func EventFire(context EventContext) bool {
	if eventState == nil {
		return false
	}
	select {
	case eventState.queue <- context:
		return true
	default:
		LogWarn("event queue full, dropping event %d", context.Type)
		return false
	}
}

// EventDispatchPending delivers every queued event on the calling goroutine.
func EventDispatchPending() int {
	if eventState == nil {
		return 0
	}
	n := 0
	for {
		select {
		case ctx := <-eventState.queue:
			dispatch(eventState, ctx)
			n++
		default:
			return n
		}
	}
}

// ProcessEvents delivers events until the system shuts down. Run it in its own goroutine.
func ProcessEvents() {
	s := eventState
	if s == nil {
		return
	}
	for {
		select {
		case <-s.done:
			return
		case ctx := <-s.queue:
			dispatch(s, ctx)
		}
	}
}

func dispatch(s *eventSystemState, ctx EventContext) {
	s.mu.RLock()
	listeners := append([]FnOnEvent(nil), s.registered[ctx.Type]...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(ctx)
	}
}
