package render

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// Scene is a loadable graph plus the renderer options it was generated
// with. Scenes are what the runner keeps in memory and what snapshots
// persist.
type Scene struct {
	Nodes   []GraphNode `json:"nodes"`
	Edges   []GraphEdge `json:"edges"`
	Options Options     `json:"options"`
}

const snapshotExt = ".zst"

// SceneInfo describes one snapshot file.
type SceneInfo struct {
	ID        string    `json:"id"`
	NumNodes  int       `json:"numNodes"`
	Timestamp time.Time `json:"timestamp"`
	FileSize  int64     `json:"fileSize"`
}

// SceneFilename builds a snapshot path encoding node count, timestamp, and
// a short random id: scene-<n>n-<timestamp>-<id>.zst
func SceneFilename(dir string, numNodes int) string {
	timestamp := time.Now().Format("20060102-150405")
	id := uuid.New().String()[:8]
	return filepath.Join(dir, fmt.Sprintf("scene-%dn-%s-%s%s", numNodes, timestamp, id, snapshotExt))
}

// SaveCompressed writes the scene as a zstd-compressed binary snapshot.
func (s *Scene) SaveCompressed(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	bufWriter := bufio.NewWriterSize(file, 1024*1024)
	enc, err := zstd.NewWriter(bufWriter,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}

	// Options vary in shape, so they travel as a length-prefixed JSON blob
	// ahead of the fixed-width node and edge records.
	optBytes, err := json.Marshal(s.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	// Write sizes first for allocation
	binary.Write(enc, binary.LittleEndian, uint32(len(s.Nodes)))
	binary.Write(enc, binary.LittleEndian, uint32(len(s.Edges)))
	binary.Write(enc, binary.LittleEndian, uint32(len(optBytes)))
	enc.Write(optBytes)

	for _, n := range s.Nodes {
		binary.Write(enc, binary.LittleEndian, n.ID)
		binary.Write(enc, binary.LittleEndian, n.X)
		binary.Write(enc, binary.LittleEndian, n.Y)
		binary.Write(enc, binary.LittleEndian, n.Radius)
		binary.Write(enc, binary.LittleEndian, n.Importance)
	}

	for _, e := range s.Edges {
		binary.Write(enc, binary.LittleEndian, e.ID)
		binary.Write(enc, binary.LittleEndian, e.SourceID)
		binary.Write(enc, binary.LittleEndian, e.TargetID)
		binary.Write(enc, binary.LittleEndian, e.Weight)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %w", err)
	}
	if err := bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	return nil
}

// LoadCompressedScene reads a snapshot written by SaveCompressed.
func LoadCompressedScene(filename string) (*Scene, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	dec, err := zstd.NewReader(bufio.NewReaderSize(file, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	var numNodes, numEdges, optLen uint32
	if err := binary.Read(dec, binary.LittleEndian, &numNodes); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	binary.Read(dec, binary.LittleEndian, &numEdges)
	binary.Read(dec, binary.LittleEndian, &optLen)

	optBytes := make([]byte, optLen)
	if _, err := io.ReadFull(dec, optBytes); err != nil {
		return nil, fmt.Errorf("failed to read options: %w", err)
	}
	scene := &Scene{}
	if err := json.Unmarshal(optBytes, &scene.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}

	scene.Nodes = make([]GraphNode, numNodes)
	for i := range scene.Nodes {
		binary.Read(dec, binary.LittleEndian, &scene.Nodes[i].ID)
		binary.Read(dec, binary.LittleEndian, &scene.Nodes[i].X)
		binary.Read(dec, binary.LittleEndian, &scene.Nodes[i].Y)
		binary.Read(dec, binary.LittleEndian, &scene.Nodes[i].Radius)
		if err := binary.Read(dec, binary.LittleEndian, &scene.Nodes[i].Importance); err != nil {
			return nil, fmt.Errorf("snapshot truncated at node %d: %w", i, err)
		}
	}

	scene.Edges = make([]GraphEdge, numEdges)
	for i := range scene.Edges {
		binary.Read(dec, binary.LittleEndian, &scene.Edges[i].ID)
		binary.Read(dec, binary.LittleEndian, &scene.Edges[i].SourceID)
		binary.Read(dec, binary.LittleEndian, &scene.Edges[i].TargetID)
		if err := binary.Read(dec, binary.LittleEndian, &scene.Edges[i].Weight); err != nil {
			return nil, fmt.Errorf("snapshot truncated at edge %d: %w", i, err)
		}
	}

	return scene, nil
}

// ListSavedScenes inventories the snapshot directory, most recent first.
func ListSavedScenes(dir string) ([]SceneInfo, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	scenes := make([]SceneInfo, 0)
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != snapshotExt {
			continue
		}
		stat, err := file.Info()
		if err != nil {
			continue
		}
		info, ok := parseSceneFilename(file.Name())
		if !ok {
			continue
		}
		info.FileSize = stat.Size()
		scenes = append(scenes, info)
	}

	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].Timestamp.After(scenes[j].Timestamp)
	})
	return scenes, nil
}

// FindSceneFile resolves a snapshot path by its short id.
func FindSceneFile(dir, id string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read snapshot directory: %w", err)
	}
	for _, file := range files {
		if strings.Contains(file.Name(), id) && strings.HasSuffix(file.Name(), snapshotExt) {
			return filepath.Join(dir, file.Name()), nil
		}
	}
	return "", fmt.Errorf("no scene snapshot found with id %s", id)
}

// GetSceneInfo returns the parsed info for one snapshot id.
func GetSceneInfo(dir, id string) (*SceneInfo, error) {
	path, err := FindSceneFile(dir, id)
	if err != nil {
		return nil, err
	}
	info, ok := parseSceneFilename(filepath.Base(path))
	if !ok {
		return nil, fmt.Errorf("invalid snapshot filename %s", filepath.Base(path))
	}
	if stat, err := os.Stat(path); err == nil {
		info.FileSize = stat.Size()
	}
	return &info, nil
}

// parseSceneFilename decodes scene-<n>n-<timestamp>-<id>.zst
func parseSceneFilename(name string) (SceneInfo, bool) {
	base := strings.TrimSuffix(name, snapshotExt)
	parts := strings.Split(base, "-")
	if len(parts) != 5 || parts[0] != "scene" {
		return SceneInfo{}, false
	}
	numNodes, err := strconv.Atoi(strings.TrimSuffix(parts[1], "n"))
	if err != nil {
		return SceneInfo{}, false
	}
	timestamp, err := time.Parse("20060102-150405", parts[2]+"-"+parts[3])
	if err != nil {
		return SceneInfo{}, false
	}
	return SceneInfo{
		ID:        parts[4],
		NumNodes:  numNodes,
		Timestamp: timestamp,
	}, true
}
