package render

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/klauspost/compress/zstd"
)

// MMapWriter handles writing to memory-mapped files
type MMapWriter struct {
	data   mmap.MMap
	offset int
}

func NewMMapWriter(data mmap.MMap) *MMapWriter {
	return &MMapWriter{
		data:   data,
		offset: 0,
	}
}

func (w *MMapWriter) WriteUint32(v uint32) {
	binary.LittleEndian.PutUint32(w.data[w.offset:], v)
	w.offset += 4
}

func (w *MMapWriter) WriteFloat64(v float64) {
	binary.LittleEndian.PutUint64(w.data[w.offset:], math.Float64bits(v))
	w.offset += 8
}

func (w *MMapWriter) WriteBytes(b []byte) {
	copy(w.data[w.offset:], b)
	w.offset += len(b)
}

// MMapReader handles reading from memory-mapped files
type MMapReader struct {
	data   mmap.MMap
	offset int
}

func NewMMapReader(data mmap.MMap) *MMapReader {
	return &MMapReader{
		data:   data,
		offset: 0,
	}
}

func (r *MMapReader) ReadUint32() uint32 {
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v
}

func (r *MMapReader) ReadFloat64() float64 {
	v := binary.LittleEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	return math.Float64frombits(v)
}

func (r *MMapReader) ReadBytes(n int) []byte {
	b := make([]byte, n)
	copy(b, r.data[r.offset:r.offset+n])
	r.offset += n
	return b
}

const (
	mmapNodeRecordSize = 4 + 8*4 // ID + X, Y, Radius, Importance
	mmapEdgeRecordSize = 4*3 + 8 // ID, SourceID, TargetID + Weight
)

// calculateSize calculates total size needed for memory mapping
func (s *Scene) calculateSize(optLen int) int64 {
	size := int64(12) // header: node count, edge count, options length
	size += int64(optLen)
	size += mmapNodeRecordSize * int64(len(s.Nodes))
	size += mmapEdgeRecordSize * int64(len(s.Edges))
	return size
}

func (s *Scene) SaveMMap(filename string) error {
	optBytes, err := json.Marshal(s.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}
	size := s.calculateSize(len(optBytes))

	// Create and truncate file
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("failed to truncate file: %w", err)
	}

	// Memory map the file
	mmapData, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to mmap file: %w", err)
	}
	defer mmapData.Unmap()

	writer := NewMMapWriter(mmapData)

	writer.WriteUint32(uint32(len(s.Nodes)))
	writer.WriteUint32(uint32(len(s.Edges)))
	writer.WriteUint32(uint32(len(optBytes)))
	writer.WriteBytes(optBytes)

	for _, n := range s.Nodes {
		writer.WriteUint32(n.ID)
		writer.WriteFloat64(n.X)
		writer.WriteFloat64(n.Y)
		writer.WriteFloat64(n.Radius)
		writer.WriteFloat64(n.Importance)
	}

	for _, e := range s.Edges {
		writer.WriteUint32(e.ID)
		writer.WriteUint32(e.SourceID)
		writer.WriteUint32(e.TargetID)
		writer.WriteFloat64(e.Weight)
	}

	return mmapData.Flush()
}

func LoadMMapScene(filename string) (*Scene, error) {
	file, err := os.OpenFile(filename, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	// Memory map the file
	mmapData, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}
	defer mmapData.Unmap()

	reader := NewMMapReader(mmapData)

	numNodes := reader.ReadUint32()
	numEdges := reader.ReadUint32()
	optLen := reader.ReadUint32()

	scene := &Scene{}
	if err := json.Unmarshal(reader.ReadBytes(int(optLen)), &scene.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}

	if int64(len(mmapData)) < scene.calculateSize(int(optLen)) {
		return nil, fmt.Errorf("mmap file too small for declared counts")
	}

	scene.Nodes = make([]GraphNode, numNodes)
	for i := range scene.Nodes {
		scene.Nodes[i] = GraphNode{
			ID:         reader.ReadUint32(),
			X:          reader.ReadFloat64(),
			Y:          reader.ReadFloat64(),
			Radius:     reader.ReadFloat64(),
			Importance: reader.ReadFloat64(),
		}
	}

	scene.Edges = make([]GraphEdge, numEdges)
	for i := range scene.Edges {
		scene.Edges[i] = GraphEdge{
			ID:       reader.ReadUint32(),
			SourceID: reader.ReadUint32(),
			TargetID: reader.ReadUint32(),
			Weight:   reader.ReadFloat64(),
		}
	}

	return scene, nil
}

func (s *Scene) SaveCompressedMMap(filename string) error {
	// First save to temporary mmap file
	tempFile := filename + ".tmp"
	if err := s.SaveMMap(tempFile); err != nil {
		return fmt.Errorf("failed to save mmap: %w", err)
	}
	defer os.Remove(tempFile)

	// Now compress the mmap file
	src, err := os.Open(tempFile)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create compressed file: %w", err)
	}
	defer dst.Close()

	enc, err := zstd.NewWriter(dst,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	defer enc.Close()

	_, err = io.Copy(enc, src)
	if err != nil {
		return fmt.Errorf("failed to compress data: %w", err)
	}

	return nil
}

func LoadCompressedMMapScene(filename string) (*Scene, error) {
	// Create temporary file for decompressed data
	tempFile := filename + ".tmp"
	dst, err := os.Create(tempFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tempFile)
	defer dst.Close()

	// Open compressed file
	src, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed file: %w", err)
	}
	defer src.Close()

	// Create decompressor
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	// Decompress to temp file
	if _, err := io.Copy(dst, dec); err != nil {
		return nil, fmt.Errorf("failed to decompress data: %w", err)
	}

	// Sync to ensure all data is written
	if err := dst.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync temp file: %w", err)
	}

	// Now load using mmap
	return LoadMMapScene(tempFile)
}
