package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"web/graphview/render"
)

// sceneEntry pairs a loaded scene with its renderer. The renderer owns a
// spatial index, so frames against one scene are serialized on mu.
type sceneEntry struct {
	mu       sync.Mutex
	scene    *render.Scene
	renderer *render.VirtualRenderer
}

// SceneRunner keeps a bounded set of scenes resident in memory, loading
// snapshots on demand and evicting the least recently used scene when the
// cap is reached.
type SceneRunner struct {
	dataDir      string
	scenes       map[string]*sceneEntry
	sceneLock    sync.RWMutex
	lastAccessed map[string]time.Time
	maxScenes    int
	log          *zap.Logger
	metrics      *render.Metrics
	done         chan struct{}
}

func NewSceneRunner(dataDir string, maxScenes int, logger *zap.Logger) (*SceneRunner, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	runner := &SceneRunner{
		dataDir:      dataDir,
		scenes:       make(map[string]*sceneEntry),
		lastAccessed: make(map[string]time.Time),
		maxScenes:    maxScenes,
		log:          logger,
		done:         make(chan struct{}),
	}

	// Start cleanup goroutine
	go runner.cleanupInactiveScenes()

	return runner, nil
}

// SetMetrics attaches a prometheus sink shared by all scene renderers.
func (r *SceneRunner) SetMetrics(m *render.Metrics) {
	r.metrics = m
}

// Close stops the background cleanup goroutine.
func (r *SceneRunner) Close() {
	close(r.done)
}

func (r *SceneRunner) newEntry(scene *render.Scene) (*sceneEntry, error) {
	renderer, err := render.NewVirtualRenderer(scene.Options, r.log)
	if err != nil {
		return nil, fmt.Errorf("failed to build renderer: %w", err)
	}
	if r.metrics != nil {
		renderer.SetMetrics(r.metrics)
	}
	return &sceneEntry{scene: scene, renderer: renderer}, nil
}

// CreateScene generates a synthetic scene, snapshots it to disk, and keeps
// it resident.
func (r *SceneRunner) CreateScene(numNodes, numEdges int) (*render.SceneInfo, error) {
	r.log.Info("Creating new scene",
		zap.Int("numNodes", numNodes),
		zap.Int("numEdges", numEdges))

	bounds := render.Bounds{
		MinX: -4000.0,
		MinY: -3000.0,
		MaxX: 4000.0,
		MaxY: 3000.0,
	}
	scene := render.GenerateTestScene(numNodes, numEdges, bounds, time.Now().UnixNano())

	savePath := render.SceneFilename(r.dataDir, numNodes)
	if err := scene.SaveCompressed(savePath); err != nil {
		return nil, fmt.Errorf("failed to save scene: %w", err)
	}

	// Extract ID from filename
	// Format: scene-{numNodes}n-{timestamp}-{id}.zst
	parts := strings.Split(filepath.Base(savePath), "-")
	if len(parts) != 5 {
		return nil, fmt.Errorf("invalid filename format")
	}
	id := strings.TrimSuffix(parts[4], ".zst")

	entry, err := r.newEntry(scene)
	if err != nil {
		return nil, err
	}

	r.sceneLock.Lock()
	r.evictIfFull()
	r.scenes[id] = entry
	r.lastAccessed[id] = time.Now()
	r.sceneLock.Unlock()

	fileInfo, err := os.Stat(savePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	if r.metrics != nil {
		r.metrics.SnapshotBytes.Set(float64(fileInfo.Size()))
	}

	return &render.SceneInfo{
		ID:        id,
		NumNodes:  len(scene.Nodes),
		Timestamp: time.Now(),
		FileSize:  fileInfo.Size(),
	}, nil
}

// ListScenes inventories saved snapshots on disk.
func (r *SceneRunner) ListScenes() ([]render.SceneInfo, error) {
	return render.ListSavedScenes(r.dataDir)
}

// LoadScene brings a snapshot into memory if it is not already resident.
func (r *SceneRunner) LoadScene(id string) (*render.SceneInfo, error) {
	if err := r.loadSceneIfNeeded(id); err != nil {
		return nil, err
	}
	return render.GetSceneInfo(r.dataDir, id)
}

// RenderFrame runs the frame pipeline for one resident scene.
func (r *SceneRunner) RenderFrame(id string, in render.FrameInput) (*render.RenderPlan, error) {
	if err := r.loadSceneIfNeeded(id); err != nil {
		return nil, err
	}

	r.sceneLock.RLock()
	entry := r.scenes[id]
	r.sceneLock.RUnlock()

	in.Nodes = entry.scene.Nodes
	in.Edges = entry.scene.Edges

	entry.mu.Lock()
	plan := entry.renderer.RenderFrame(in)
	entry.mu.Unlock()

	return plan, nil
}

// Summarize renders one frame and reduces it to aggregate statistics.
func (r *SceneRunner) Summarize(id string, in render.FrameInput) (*render.PlanSummary, error) {
	plan, err := r.RenderFrame(id, in)
	if err != nil {
		return nil, err
	}
	summary := render.SummarizePlan(plan)
	return &summary, nil
}

func (r *SceneRunner) cleanupInactiveScenes() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
		}

		r.sceneLock.Lock()
		now := time.Now()

		// Find scenes inactive for more than 30 minutes
		var toRemove []string
		for id, lastAccess := range r.lastAccessed {
			if now.Sub(lastAccess) > 30*time.Minute {
				toRemove = append(toRemove, id)
			}
		}

		for _, id := range toRemove {
			delete(r.scenes, id)
			delete(r.lastAccessed, id)
			r.log.Info("Evicted inactive scene", zap.String("id", id))
		}

		r.sceneLock.Unlock()
	}
}

// evictIfFull removes the least recently used scene. Caller holds sceneLock.
func (r *SceneRunner) evictIfFull() {
	if len(r.scenes) < r.maxScenes {
		return
	}

	var oldestID string
	var oldestTime time.Time
	first := true

	for id, accessTime := range r.lastAccessed {
		if first || accessTime.Before(oldestTime) {
			oldestID = id
			oldestTime = accessTime
			first = false
		}
	}

	if oldestID != "" {
		delete(r.scenes, oldestID)
		delete(r.lastAccessed, oldestID)
		r.log.Info("Evicted scene", zap.String("id", oldestID))
	}
}

func (r *SceneRunner) loadSceneIfNeeded(id string) error {
	r.sceneLock.Lock()
	defer r.sceneLock.Unlock()

	// Update access time if scene is already loaded
	if _, exists := r.scenes[id]; exists {
		r.lastAccessed[id] = time.Now()
		return nil
	}

	r.evictIfFull()

	sceneFile, err := render.FindSceneFile(r.dataDir, id)
	if err != nil {
		return fmt.Errorf("failed to find scene file: %w", err)
	}

	scene, err := render.LoadCompressedScene(sceneFile)
	if err != nil {
		return fmt.Errorf("failed to load scene %s: %w", id, err)
	}

	entry, err := r.newEntry(scene)
	if err != nil {
		return err
	}

	r.scenes[id] = entry
	r.lastAccessed[id] = time.Now()
	return nil
}
