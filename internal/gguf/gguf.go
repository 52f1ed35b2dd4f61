// Package gguf reads the metadata header of GGUF model files.
//
// Only the keys needed to run a causal language model are kept: architecture, context
// length, weight file type and the tokenizer's special token ids. Tensor data is never read.
package gguf

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// Magic is the little-endian "GGUF" file signature.
const Magic uint32 = 0x46554747

// ErrFormat is returned for files that are not readable GGUF v2/v3 files.
var ErrFormat = errors.New("invalid gguf file")

// FileType is the general.file_type value, the dominant weight quantization of the file.
type FileType uint32

// File types relevant to precision selection.
const (
	FileTypeF32  FileType = 0
	FileTypeF16  FileType = 1
	FileTypeQ4_0 FileType = 2
	FileTypeQ4_1 FileType = 3
	FileTypeQ8_0 FileType = 7
	FileTypeQ5_0 FileType = 8
	FileTypeQ5_1 FileType = 9
	FileTypeBF16 FileType = 32

	FileTypeUnknown FileType = math.MaxUint32
)

func (t FileType) String() string {
	switch t {
	case FileTypeF32:
		return "F32"
	case FileTypeF16:
		return "F16"
	case FileTypeQ4_0:
		return "Q4_0"
	case FileTypeQ4_1:
		return "Q4_1"
	case FileTypeQ8_0:
		return "Q8_0"
	case FileTypeQ5_0:
		return "Q5_0"
	case FileTypeQ5_1:
		return "Q5_1"
	case FileTypeBF16:
		return "BF16"
	case FileTypeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// Metadata is the subset of GGUF key/values used by the model host.
// Token ids are -1 when the key is absent.
type Metadata struct {
	Version       uint32
	Architecture  string
	Name          string
	FileType      FileType
	ContextLength int
	TokenCount    int
	BOSTokenID    int
	EOSTokenID    int
	PadTokenID    int
}

// value types as defined by the GGUF specification.
const (
	typeUint8   uint32 = 0
	typeInt8    uint32 = 1
	typeUint16  uint32 = 2
	typeInt16   uint32 = 3
	typeUint32  uint32 = 4
	typeInt32   uint32 = 5
	typeFloat32 uint32 = 6
	typeBool    uint32 = 7
	typeString  uint32 = 8
	typeArray   uint32 = 9
	typeUint64  uint32 = 10
	typeInt64   uint32 = 11
	typeFloat64 uint32 = 12
)

// maxStringLen guards against allocating absurd buffers for corrupt files.
const maxStringLen = 1 << 24

// ReadFile reads the metadata of the GGUF file at path.
func ReadFile(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Read(bufio.NewReader(f))
}

// Read decodes the header and metadata key/values from r.
func Read(r io.Reader) (*Metadata, error) {
	d := decoder{r: r}

	if magic := d.uint32(); d.err == nil && magic != Magic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrFormat, magic)
	}
	version := d.uint32()
	if d.err == nil && version != 2 && version != 3 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, version)
	}
	_ = d.uint64() // tensor count
	kvCount := d.uint64()
	if d.err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrFormat, d.err)
	}

	md := &Metadata{
		Version:    version,
		FileType:   FileTypeUnknown,
		BOSTokenID: -1,
		EOSTokenID: -1,
		PadTokenID: -1,
	}
	contextLengths := map[string]int{}

	for i := uint64(0); i < kvCount && d.err == nil; i++ {
		key := d.string()
		typ := d.uint32()
		if d.err != nil {
			break
		}

		switch key {
		case "general.architecture":
			md.Architecture = d.stringValue(typ)
		case "general.name":
			md.Name = d.stringValue(typ)
		case "general.file_type":
			md.FileType = FileType(d.intValue(typ))
		case "tokenizer.ggml.bos_token_id":
			md.BOSTokenID = int(d.intValue(typ))
		case "tokenizer.ggml.eos_token_id":
			md.EOSTokenID = int(d.intValue(typ))
		case "tokenizer.ggml.padding_token_id":
			md.PadTokenID = int(d.intValue(typ))
		case "tokenizer.ggml.tokens":
			md.TokenCount = int(d.arrayLen(typ))
		default:
			if arch, ok := strings.CutSuffix(key, ".context_length"); ok {
				contextLengths[arch] = int(d.intValue(typ))
				continue
			}
			d.skip(typ)
		}
	}
	if d.err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", ErrFormat, d.err)
	}

	md.ContextLength = contextLengths[md.Architecture]

	return md, nil
}

type decoder struct {
	r   io.Reader
	err error
	buf [8]byte
}

func (d *decoder) read(n int) []byte {
	if d.err != nil {
		return d.buf[:n]
	}
	if _, err := io.ReadFull(d.r, d.buf[:n]); err != nil {
		d.err = err
	}

	return d.buf[:n]
}

func (d *decoder) uint32() uint32 { return binary.LittleEndian.Uint32(d.read(4)) }
func (d *decoder) uint64() uint64 { return binary.LittleEndian.Uint64(d.read(8)) }

func (d *decoder) string() string {
	n := d.uint64()
	if d.err != nil {
		return ""
	}
	if n > maxStringLen {
		d.err = fmt.Errorf("string length %d too large", n)
		return ""
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.err = err
		return ""
	}

	return string(b)
}

func (d *decoder) stringValue(typ uint32) string {
	if typ != typeString {
		d.skip(typ)
		return ""
	}

	return d.string()
}

// intValue reads any integer typed value, skipping values of other types.
func (d *decoder) intValue(typ uint32) int64 {
	switch typ {
	case typeUint8:
		return int64(d.read(1)[0])
	case typeInt8:
		return int64(int8(d.read(1)[0]))
	case typeUint16:
		return int64(binary.LittleEndian.Uint16(d.read(2)))
	case typeInt16:
		return int64(int16(binary.LittleEndian.Uint16(d.read(2))))
	case typeUint32:
		return int64(d.uint32())
	case typeInt32:
		return int64(int32(d.uint32()))
	case typeUint64:
		return int64(d.uint64())
	case typeInt64:
		return int64(d.uint64())
	default:
		d.skip(typ)
		return -1
	}
}

// arrayLen returns the element count of an array value and skips its contents.
func (d *decoder) arrayLen(typ uint32) uint64 {
	if typ != typeArray {
		d.skip(typ)
		return 0
	}
	elem := d.uint32()
	n := d.uint64()
	for i := uint64(0); i < n && d.err == nil; i++ {
		d.skip(elem)
	}

	return n
}

func (d *decoder) skip(typ uint32) {
	switch typ {
	case typeUint8, typeInt8, typeBool:
		d.read(1)
	case typeUint16, typeInt16:
		d.read(2)
	case typeUint32, typeInt32, typeFloat32:
		d.read(4)
	case typeUint64, typeInt64, typeFloat64:
		d.read(8)
	case typeString:
		n := d.uint64()
		if d.err == nil {
			d.discard(n)
		}
	case typeArray:
		d.arrayLen(typ)
	default:
		if d.err == nil {
			d.err = fmt.Errorf("unknown value type %d", typ)
		}
	}
}

func (d *decoder) discard(n uint64) {
	if d.err != nil {
		return
	}
	if _, err := io.CopyN(io.Discard, d.r, int64(n)); err != nil {
		d.err = err
	}
}
