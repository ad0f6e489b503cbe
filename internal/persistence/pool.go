// Package persistence implements the build graph's object pool (§4.1): a
// single append-only heap of interned, typed byte records plus a small
// table mapping each stable ObjectID back to its slice of the heap. It
// plays the role the teacher's internal/idcodec plays for the symbol
// index: a stable-ID layer in front of a compact on-disk representation,
// with the same "assign on first store, reuse on every later lookup"
// contract.
package persistence

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"

	kerrors "github.com/kestrel-build/kestrel/internal/errors"
	"github.com/kestrel-build/kestrel/internal/types"
)

// TypeTag identifies the kind of object a heap record holds, so the
// loader can dispatch decoding without a second lookup.
type TypeTag byte

const (
	TagArtifact TypeTag = iota + 1
	TagRuleNode
	TagTransformer
	TagProduct
	TagProject
	TagFileResource
	TagRaw
)

func (t TypeTag) String() string {
	switch t {
	case TagArtifact:
		return "artifact"
	case TagRuleNode:
		return "rule-node"
	case TagTransformer:
		return "transformer"
	case TagProduct:
		return "product"
	case TagProject:
		return "project"
	case TagFileResource:
		return "file-resource"
	case TagRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// magic identifies a kestrel build-graph persist file. It never changes;
// SchemaVersion is what gets bumped when the on-disk object shapes do.
var magic = [8]byte{'K', 'S', 'T', 'R', 'L', 'P', 'O', '1'}

type record struct {
	tag    TypeTag
	hash   uint64
	offset int64
	length int64
}

// Pool is the append-only object heap. Objects are content-addressed: two
// Intern calls with identical tag+bytes return the same ObjectID, the way
// the teacher's idcodec keeps one SymbolID per unique symbol rather than
// re-minting one per reference.
type Pool struct {
	mu sync.Mutex

	schemaVersion uint32
	configHash    uint64

	heap    bytes.Buffer
	records []record             // index 0 unused; ObjectID 1 -> records[0]
	byHash  map[uint64]types.ObjectID
}

// NewPool creates an empty pool stamped with schemaVersion and a snapshot
// of the build configuration (resolved profile properties, tool paths,
// environment) that produced it. The snapshot's hash is what a later Load
// compares against to detect a stale graph (§4.1, §4.7).
func NewPool(schemaVersion uint32, configSnapshot []byte) *Pool {
	return &Pool{
		schemaVersion: schemaVersion,
		configHash:    xxhash.Sum64(configSnapshot),
		byHash:        make(map[uint64]types.ObjectID),
	}
}

// SchemaVersion reports the version this pool was created or loaded with.
func (p *Pool) SchemaVersion() uint32 {
	return p.schemaVersion
}

// Intern stores data under tag, returning its stable ObjectID. A second
// call with byte-identical data and the same tag returns the same ID
// without growing the heap.
func (p *Pool) Intern(tag TypeTag, data []byte) types.ObjectID {
	h := xxhash.Sum64(data)
	key := h ^ (uint64(tag) * 0x9e3779b97f4a7c15)

	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.byHash[key]; ok {
		return id
	}

	offset := int64(p.heap.Len())
	p.heap.Write(data)
	p.records = append(p.records, record{
		tag:    tag,
		hash:   h,
		offset: offset,
		length: int64(len(data)),
	})

	id := types.ObjectID(len(p.records))
	p.byHash[key] = id
	return id
}

// Get returns the bytes stored for id along with their tag.
func (p *Pool) Get(id types.ObjectID) ([]byte, TypeTag, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id == 0 || int(id) > len(p.records) {
		return nil, 0, kerrors.NewInternalError("persistence: object id in range", fmt.Sprintf("id=%d count=%d", id, len(p.records)), nil)
	}
	rec := p.records[id-1]
	heapBytes := p.heap.Bytes()
	return heapBytes[rec.offset : rec.offset+rec.length], rec.tag, nil
}

// Len reports how many distinct objects are interned.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// header is the fixed-size prefix of a persisted pool file.
type header struct {
	Magic         [8]byte
	SchemaVersion uint64
	ConfigHash    uint64
	HeapLength    uint64
	RecordCount   uint64
}

// Save serializes the pool as: header, heap bytes, then one fixed-size
// record per object. Loading is two-phase (§4.1): the header can be
// validated against the running configuration before the (potentially
// large) heap and object table are ever read.
func (p *Pool) Save(w io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	bw := bufio.NewWriter(w)

	hdr := header{
		Magic:         magic,
		SchemaVersion: uint64(p.schemaVersion),
		ConfigHash:    p.configHash,
		HeapLength:    uint64(p.heap.Len()),
		RecordCount:   uint64(len(p.records)),
	}
	if err := binary.Write(bw, binary.LittleEndian, hdr); err != nil {
		return kerrors.NewIOError("write", "<persist>", err)
	}
	if _, err := bw.Write(p.heap.Bytes()); err != nil {
		return kerrors.NewIOError("write", "<persist>", err)
	}
	for _, rec := range p.records {
		row := [4]uint64{uint64(rec.tag), rec.hash, uint64(rec.offset), uint64(rec.length)}
		if err := binary.Write(bw, binary.LittleEndian, row); err != nil {
			return kerrors.NewIOError("write", "<persist>", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return kerrors.NewIOError("write", "<persist>", err)
	}
	return nil
}

// SaveFile writes the pool to path, creating or truncating it.
func (p *Pool) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return kerrors.NewIOError("create", path, err)
	}
	defer f.Close()
	return p.Save(f)
}

// Load reads a pool previously written by Save, validating its header
// against schemaVersion and configSnapshot before decoding anything else.
// A schema or config mismatch is reported as a BuildGraphLoadError so the
// facade can fall back to a fresh resolve instead of trusting stale data.
func Load(r io.Reader, schemaVersion uint32, configSnapshot []byte) (*Pool, error) {
	var hdr header
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, kerrors.NewCorruptError("<persist>", err)
		}
		return nil, kerrors.NewIOError("read", "<persist>", err)
	}
	if hdr.Magic != magic {
		return nil, kerrors.NewCorruptError("<persist>", fmt.Errorf("bad magic"))
	}

	wantHash := xxhash.Sum64(configSnapshot)
	if hdr.SchemaVersion != uint64(schemaVersion) || hdr.ConfigHash != wantHash {
		return nil, kerrors.NewSchemaMismatchError("<persist>", fmt.Errorf("want schema %d config %x, got schema %d config %x", schemaVersion, wantHash, hdr.SchemaVersion, hdr.ConfigHash))
	}

	// Phase two: header validated, now decode the heap and object table.
	heapBytes := make([]byte, hdr.HeapLength)
	if _, err := io.ReadFull(r, heapBytes); err != nil {
		return nil, kerrors.NewCorruptError("<persist>", err)
	}

	records := make([]record, 0, hdr.RecordCount)
	byHash := make(map[uint64]types.ObjectID, hdr.RecordCount)
	for i := uint64(0); i < hdr.RecordCount; i++ {
		var row [4]uint64
		if err := binary.Read(r, binary.LittleEndian, &row); err != nil {
			return nil, kerrors.NewCorruptError("<persist>", err)
		}
		rec := record{
			tag:    TypeTag(row[0]),
			hash:   row[1],
			offset: int64(row[2]),
			length: int64(row[3]),
		}
		records = append(records, rec)
		id := types.ObjectID(i + 1)
		key := rec.hash ^ (uint64(rec.tag) * 0x9e3779b97f4a7c15)
		byHash[key] = id
	}

	p := &Pool{
		schemaVersion: uint32(hdr.SchemaVersion),
		configHash:    hdr.ConfigHash,
		records:       records,
		byHash:        byHash,
	}
	p.heap.Write(heapBytes)
	return p, nil
}

// LoadFile loads a pool from path. A missing file is reported as
// NoBuildGraphError rather than a generic IO error, so callers can tell
// "never built" apart from "build graph is unreadable" (§4.1, §7).
func LoadFile(path string, schemaVersion uint32, configSnapshot []byte) (*Pool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kerrors.NewNoBuildGraphError(path)
		}
		return nil, kerrors.NewIOError("open", path, err)
	}
	defer f.Close()
	return Load(bufio.NewReader(f), schemaVersion, configSnapshot)
}
