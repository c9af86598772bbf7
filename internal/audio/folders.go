package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/solenne/livecast/internal/logger"
	"github.com/solenne/livecast/internal/state"
)

// orderFileName is where the folder ordering persists, inside the base dir.
const orderFileName = "_folder_order.json"

// FolderRotation round-robins across content subfolders of a base
// directory, picking one random audio file per visit. The folder order
// is author-controlled and persists across restarts; folders that appear
// on disk but not in the saved order are appended at the end.
type FolderRotation struct {
	log *logger.Logger

	mu      sync.Mutex
	baseDir string
	folders []string
	index   int
}

// NewFolderRotation creates a rotation over baseDir and loads the saved
// order.
func NewFolderRotation(baseDir string, log *logger.Logger) *FolderRotation {
	fr := &FolderRotation{baseDir: baseDir, log: log}
	fr.reload()
	return fr
}

// SetBaseDir switches the content directory and reloads the order.
func (fr *FolderRotation) SetBaseDir(baseDir string) {
	fr.mu.Lock()
	fr.baseDir = baseDir
	fr.mu.Unlock()
	fr.reload()
}

// Folders returns the current rotation order.
func (fr *FolderRotation) Folders() []string {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	out := make([]string, len(fr.folders))
	copy(out, fr.folders)
	return out
}

// Save persists a new folder order and restarts the rotation from the top.
func (fr *FolderRotation) Save(order []string) error {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	data, err := json.MarshalIndent(order, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding folder order: %w", err)
	}
	if err := os.WriteFile(filepath.Join(fr.baseDir, orderFileName), data, 0o644); err != nil {
		return fmt.Errorf("writing folder order: %w", err)
	}

	fr.folders = append([]string(nil), order...)
	fr.index = 0
	fr.log.Info("folder order saved (%d folders)", len(order))
	return nil
}

// reload scans subfolders and applies the saved order on top: saved
// entries that still exist keep their position, new folders append.
func (fr *FolderRotation) reload() {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	onDisk := fr.scanFolders()

	var ordered []string
	data, err := os.ReadFile(filepath.Join(fr.baseDir, orderFileName))
	if err == nil {
		var saved []string
		if jsonErr := json.Unmarshal(data, &saved); jsonErr == nil {
			exists := make(map[string]bool, len(onDisk))
			for _, f := range onDisk {
				exists[f] = true
			}
			for _, f := range saved {
				if exists[f] {
					ordered = append(ordered, f)
					exists[f] = false
				}
			}
			for _, f := range onDisk {
				if exists[f] {
					ordered = append(ordered, f)
				}
			}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		fr.log.Warn("reading folder order: %v", err)
	}

	if ordered == nil {
		ordered = onDisk
	}
	fr.folders = ordered
	fr.index = 0
	fr.log.Debug("folder rotation loaded: %v", fr.folders)
}

// scanFolders lists subdirectories of the base dir, sorted by name.
// Must be called with fr.mu held.
func (fr *FolderRotation) scanFolders() []string {
	entries, err := os.ReadDir(fr.baseDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}

// PickNext advances to the next folder in the order and picks one random
// audio file from it. Empty or vanished folders are skipped; after one
// full lap with nothing playable it returns ok=false.
func (fr *FolderRotation) PickNext() (string, bool) {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	if len(fr.folders) == 0 {
		return "", false
	}
	if fr.index < 0 || fr.index >= len(fr.folders) {
		fr.index = 0
	}

	for tried := 0; tried < len(fr.folders); tried++ {
		folder := filepath.Join(fr.baseDir, fr.folders[fr.index])
		fr.index = (fr.index + 1) % len(fr.folders)

		files := scanFolderAudio(folder)
		if len(files) > 0 {
			return files[rand.Intn(len(files))], true
		}
	}
	return "", false
}

// scanFolderAudio lists playable files directly inside folder.
func scanFolderAudio(folder string) []string {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if audioExts[strings.ToLower(filepath.Ext(e.Name()))] {
			out = append(out, filepath.Join(folder, e.Name()))
		}
	}
	return out
}

// RotationLoop feeds the dispatcher with rotation filler: whenever the
// system is ready and the dispatcher has nothing queued or playing, it
// pushes one random pick from the next folder in order.
type RotationLoop struct {
	rotation *FolderRotation
	disp     *Dispatcher
	shared   *state.Context
	log      *logger.Logger
	interval time.Duration
}

// NewRotationLoop creates the filler loop. interval is the idle poll
// period; the original polls a few times a second.
func NewRotationLoop(rotation *FolderRotation, disp *Dispatcher, shared *state.Context, log *logger.Logger, interval time.Duration) *RotationLoop {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &RotationLoop{
		rotation: rotation,
		disp:     disp,
		shared:   shared,
		log:      log,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled. Intended to be called as a goroutine.
func (rl *RotationLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.interval)
	defer ticker.Stop()

	rl.log.Info("folder rotation loop started (interval=%s)", rl.interval)

	for {
		select {
		case <-ctx.Done():
			rl.log.Info("folder rotation loop stopped")
			return
		case <-ticker.C:
			rl.step()
		}
	}
}

func (rl *RotationLoop) step() {
	if !rl.shared.Ready() {
		return
	}
	if !rl.disp.Idle() {
		return
	}
	path, ok := rl.rotation.PickNext()
	if !ok {
		return
	}
	rl.log.Debug("rotation pick: %s", filepath.Base(path))
	rl.disp.PushRandom(path)
}
