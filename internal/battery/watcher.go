package battery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"cookia/internal/logging"
)

// DefaultSupplyDir is the Linux power_supply class directory
const DefaultSupplyDir = "/sys/class/power_supply"

// Watcher reports the battery charge level from power_supply sysfs
type Watcher struct {
	supplyDir string
	interval  time.Duration
	logger    *logging.Logger
}

// NewWatcher creates a watcher polling supplyDir every interval
func NewWatcher(supplyDir string, interval time.Duration, logger *logging.Logger) *Watcher {
	if supplyDir == "" {
		supplyDir = DefaultSupplyDir
	}
	return &Watcher{
		supplyDir: supplyDir,
		interval:  interval,
		logger:    logger,
	}
}

// Read returns the charge percentage of the first battery supply, or nil
// when no battery is present or its level cannot be determined.
func (w *Watcher) Read() (*int, error) {
	entries, err := os.ReadDir(w.supplyDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list power supplies: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		dir := filepath.Join(w.supplyDir, name)
		if kind, _ := readString(filepath.Join(dir, "type")); kind != "Battery" {
			continue
		}
		level, err := readLevel(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		return level, nil
	}

	return nil, nil
}

// readLevel prefers the kernel's capacity and falls back to now/full pairs
func readLevel(dir string) (*int, error) {
	if capacity, err := readInt(filepath.Join(dir, "capacity")); err == nil {
		return percent(capacity, 100), nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	for _, prefix := range []string{"energy", "charge"} {
		now, err := readInt(filepath.Join(dir, prefix+"_now"))
		if err != nil {
			continue
		}
		full, err := readInt(filepath.Join(dir, prefix+"_full"))
		if err != nil {
			continue
		}
		return percent(now, full), nil
	}

	return nil, nil
}

func percent(level, scale int64) *int {
	if level < 0 || scale <= 0 {
		return nil
	}
	pct := int(level * 100 / scale)
	if pct > 100 {
		pct = 100
	}
	return &pct
}

// Run reports the level once, then again whenever it changes, until ctx is
// done.
func (w *Watcher) Run(ctx context.Context, onChange func(level *int)) {
	interval := w.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Debug("battery.watch.start", "Battery watch started", map[string]interface{}{
		"supply_dir": w.supplyDir,
		"interval":   interval.String(),
	})

	last := w.sample()
	onChange(last)

	for {
		select {
		case <-ticker.C:
			level := w.sample()
			if !sameLevel(last, level) {
				last = level
				onChange(level)
			}
		case <-ctx.Done():
			w.logger.Debug("battery.watch.stop", "Battery watch stopped", nil)
			return
		}
	}
}

func (w *Watcher) sample() *int {
	level, err := w.Read()
	if err != nil {
		w.logger.Warn("battery.read.failed", "Failed to read battery level", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return level
}

func sameLevel(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func readString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readInt(path string) (int64, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value in %s: %w", path, err)
	}
	return v, nil
}
