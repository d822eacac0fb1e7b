package retrieval

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/milo-edu/milo-rag/internal/core/domain"
)

// Dense index file format, little-endian throughout:
//
//	[4]byte  magic "MFIP" (flat inner-product)
//	uint32   version (1)
//	uint32   dimension
//	uint64   vector count
//	count*dimension float32 rows in corpus-position order
const (
	denseMagic   = "MFIP"
	denseVersion = 1

	// magic + version + dimension + count
	denseHeaderSize = 4 + 4 + 4 + 8
)

func SaveDenseIndex(path string, ix *DenseIndex) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), "dense-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp dense index: %w", err)
	}
	tmpName := f.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(denseMagic); err != nil {
		f.Close()
		return fmt.Errorf("write dense header: %w", err)
	}
	header := []uint32{denseVersion, uint32(ix.Dim())}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			f.Close()
			return fmt.Errorf("write dense header: %w", err)
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(ix.Len())); err != nil {
		f.Close()
		return fmt.Errorf("write dense header: %w", err)
	}

	row := make([]byte, 4*ix.Dim())
	for _, vec := range ix.Vectors() {
		for i, x := range vec {
			binary.LittleEndian.PutUint32(row[i*4:], math.Float32bits(x))
		}
		if _, err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("write dense rows: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush dense index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close dense index: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename dense index: %w", err)
	}
	return nil
}

func LoadDenseIndex(path string) (*DenseIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrMissingArtifact, "load dense index", fmt.Errorf("%s", path))
		}
		return nil, fmt.Errorf("load dense index: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read dense header: %w", err)
	}
	if string(magic) != denseMagic {
		return nil, fmt.Errorf("dense index %s: bad magic %q", path, magic)
	}
	var version, dim uint32
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read dense header: %w", err)
	}
	if version != denseVersion {
		return nil, fmt.Errorf("dense index %s: unsupported version %d", path, version)
	}
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dense header: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read dense header: %w", err)
	}
	if dim == 0 {
		return nil, fmt.Errorf("dense index %s: zero dimension", path)
	}

	// The count comes off disk; bound it against the actual payload size
	// before allocating, so a corrupt header cannot demand the memory of
	// rows the file does not contain.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat dense index: %w", err)
	}
	var maxRows uint64
	if payload := info.Size() - denseHeaderSize; payload > 0 {
		maxRows = uint64(payload) / uint64(4*dim)
	}
	if count > maxRows {
		return nil, fmt.Errorf("dense index %s: header count %d exceeds %d rows present in file", path, count, maxRows)
	}

	vectors := make([][]float32, count)
	row := make([]byte, 4*dim)
	for i := range vectors {
		if _, err := io.ReadFull(r, row); err != nil {
			return nil, fmt.Errorf("read dense row %d: %w", i, err)
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(row[j*4:]))
		}
		vectors[i] = vec
	}
	return NewDenseIndex(int(dim), vectors)
}
