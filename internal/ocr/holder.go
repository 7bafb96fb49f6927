package ocr

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Loader constructs an engine.
type Loader func() (Engine, error)

// Holder owns the process-wide engine. The loader runs at most once; its result,
// engine or error, is kept for the life of the holder.
type Holder struct {
	load Loader

	mu       sync.RWMutex
	loaded   bool
	engine   Engine
	err      error
	loadTime time.Duration
}

// NewHolder creates a holder that constructs its engine with load.
func NewHolder(load Loader) *Holder {
	return &Holder{load: load}
}

// NewHolderFromConfig creates a holder for the configured engine.
func NewHolderFromConfig(cfg EngineConfig) *Holder {
	return NewHolder(func() (Engine, error) {
		return NewEngine(cfg)
	})
}

// NewHolderWithEngine wraps an already constructed engine.
func NewHolderWithEngine(engine Engine) *Holder {
	return &Holder{loaded: true, engine: engine}
}

// Load constructs the engine if that has not happened yet and returns the construction error.
func (h *Holder) Load() error {
	h.mu.RLock()
	if h.loaded {
		err := h.err
		h.mu.RUnlock()
		return err
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loaded {
		return h.err
	}

	start := time.Now()
	h.engine, h.err = h.construct()
	h.loadTime = time.Since(start)
	h.loaded = true

	if h.err != nil {
		h.engine = nil
		log.Error().Err(h.err).Msg("Failed to construct OCR engine")
		return h.err
	}

	log.Info().
		Str("engine", h.engine.Name()).
		Dur("load_time", h.loadTime).
		Msg("OCR engine constructed")
	return nil
}

func (h *Holder) construct() (engine Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			engine = nil
			err = fmt.Errorf("engine construction panicked: %v", r)
		}
	}()

	engine, err = h.load()
	if err == nil && engine == nil {
		err = fmt.Errorf("engine loader returned no engine")
	}
	return engine, err
}

// Get returns the engine, constructing it on first use.
func (h *Holder) Get() (Engine, error) {
	if err := h.Load(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.engine, nil
}

// Ready reports whether the engine was constructed successfully.
// It never triggers construction.
func (h *Holder) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loaded && h.engine != nil
}

// Name returns the engine name, or a placeholder describing the holder state.
func (h *Holder) Name() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	switch {
	case !h.loaded:
		return "not loaded"
	case h.engine == nil:
		return "unavailable"
	default:
		return h.engine.Name()
	}
}

// LoadTime returns how long construction took.
func (h *Holder) LoadTime() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loadTime
}

// Close releases the engine if it was constructed.
func (h *Holder) Close() error {
	h.mu.RLock()
	engine := h.engine
	h.mu.RUnlock()
	if engine == nil {
		return nil
	}
	return engine.Close()
}
