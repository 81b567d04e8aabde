package vm

import (
	"os"

	"github.com/naoina/toml"
)

// Config tunes the collector and the frame/stack limits, per spec §4.3 and
// §4.5. Defaults match the spec exactly when no file is supplied.
type Config struct {
	// GCGrowthFactor multiplies the live-byte count after a collection to
	// pick the next trigger threshold (spec §4.3: "growth factor is 2").
	GCGrowthFactor float64 `toml:"gc_growth_factor"`
	// GCHeapFloor is the minimum trigger threshold at startup (spec §4.3:
	// "floor is 1 MiB at startup").
	GCHeapFloor int `toml:"gc_heap_floor"`
	// FramesMax bounds the call-frame stack; exceeding it is the "Stack
	// overflow" runtime error of spec §4.5/§7.
	FramesMax int `toml:"frames_max"`
	// StackMax bounds the value stack, sized as FramesMax times the
	// largest plausible per-frame slot window.
	StackMax int `toml:"stack_max"`
}

// DefaultConfig returns the spec's defaults: growth factor 2, 1 MiB floor.
func DefaultConfig() Config {
	return Config{
		GCGrowthFactor: 2,
		GCHeapFloor:    1024 * 1024,
		FramesMax:      64,
		StackMax:       64 * 256,
	}
}

// LoadConfig reads a TOML config file, overlaying it onto DefaultConfig.
// A missing file is not an error — callers get the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
