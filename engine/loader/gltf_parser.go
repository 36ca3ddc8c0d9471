package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/url"
	"path"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	errInvalidGLTFVersion = errors.New("invalid glTF version: must be 2.x")
	errInvalidGLBMagic    = errors.New("invalid GLB magic number")
	errInvalidGLBVersion  = errors.New("invalid GLB version: must be 2")
	errMissingJSONChunk   = errors.New("GLB file missing JSON chunk")
	errInvalidDataURI     = errors.New("invalid data URI")
	errBufferSizeMismatch = errors.New("buffer size mismatch")
)

// gltfParserImpl is the implementation of the gltfParser interface.
type gltfParserImpl struct {
	// fsys resolves external buffer and image URIs. Nil when the document came from a bare
	// reader, in which case only embedded data can be loaded.
	fsys           fs.FS
	document       *gltfDocument
	glbBinaryChunk []byte
}

// gltfParser decodes a glTF or GLB document and reads its typed accessor data.
type gltfParser interface {
	// Parse decodes data as GLB when isGLB is set or the data starts with the GLB magic,
	// as glTF JSON otherwise, and loads every buffer.
	//
	// Parameters:
	//   - data: the file contents
	//   - isGLB: true for the binary container
	//
	// Returns:
	//   - error: error if the document is malformed or a buffer cannot be loaded
	Parse(data []byte, isGLB bool) error

	// Document returns the parsed document, nil before a successful Parse.
	Document() *gltfDocument

	// ReadURI loads an external or data: URI relative to the document.
	ReadURI(uri string) ([]byte, error)

	// ReadBufferView returns a copy of the bytes of one buffer view.
	ReadBufferView(index int) ([]byte, error)

	// ReadFloats reads an accessor of the given width as float32 components. Normalized
	// integer components are mapped to [0, 1] or [-1, 1].
	//
	// Parameters:
	//   - index: the accessor index
	//   - components: the expected component count per element
	//
	// Returns:
	//   - []float32: count*components values
	//   - error: error if the accessor does not match or is out of bounds
	ReadFloats(index int, components int) ([]float32, error)

	// ReadIndices reads an unsigned integer SCALAR accessor.
	ReadIndices(index int) ([]uint32, error)
}

var _ gltfParser = &gltfParserImpl{}

// newGLTFParser creates a parser resolving external URIs against fsys, which may be nil.
//
// Parameters:
//   - fsys: the file system holding the document's external resources
//
// Returns:
//   - gltfParser: a new parser instance
func newGLTFParser(fsys fs.FS) gltfParser {
	return &gltfParserImpl{fsys: fsys}
}

func (p *gltfParserImpl) Document() *gltfDocument {
	return p.document
}

func (p *gltfParserImpl) Parse(data []byte, isGLB bool) error {
	if isGLB || (len(data) >= 4 && binary.LittleEndian.Uint32(data[:4]) == gltfGLBMagic) {
		var err error
		if data, err = p.splitGLB(data); err != nil {
			return err
		}
	}

	var doc gltfDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse glTF JSON: %w", err)
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return errInvalidGLTFVersion
	}
	for _, ext := range doc.ExtensionsRequired {
		if !supportedExtensions[ext] {
			return fmt.Errorf("required extension %s is not supported", ext)
		}
	}
	if err := p.loadBuffers(&doc); err != nil {
		return fmt.Errorf("failed to load buffers: %w", err)
	}

	p.document = &doc
	return nil
}

// splitGLB validates the GLB header and returns the JSON chunk, keeping the BIN chunk for buffer 0.
func (p *gltfParserImpl) splitGLB(data []byte) ([]byte, error) {
	r := bytes.NewReader(data)

	var header gltfGLBHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read GLB header: %w", err)
	}
	if header.Magic != gltfGLBMagic {
		return nil, errInvalidGLBMagic
	}
	if header.Version != gltfGLBVersion {
		return nil, errInvalidGLBVersion
	}

	var jsonData []byte
	for {
		var chunk gltfGLBChunkHeader
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read chunk header: %w", err)
		}
		body := make([]byte, chunk.ChunkLength)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("failed to read chunk data: %w", err)
		}
		switch chunk.ChunkType {
		case gltfGLBChunkJSON:
			jsonData = body
		case gltfGLBChunkBIN:
			p.glbBinaryChunk = body
		}
	}
	if jsonData == nil {
		return nil, errMissingJSONChunk
	}
	return jsonData, nil
}

func (p *gltfParserImpl) loadBuffers(doc *gltfDocument) error {
	for i := range doc.Buffers {
		buf := &doc.Buffers[i]
		switch {
		case buf.URI != "":
			data, err := p.ReadURI(buf.URI)
			if err != nil {
				return fmt.Errorf("buffer %d: %w", i, err)
			}
			buf.Data = data
		case i == 0 && p.glbBinaryChunk != nil:
			buf.Data = p.glbBinaryChunk
		default:
			return fmt.Errorf("buffer %d has no URI and no GLB binary chunk", i)
		}
		if len(buf.Data) < buf.ByteLength {
			return fmt.Errorf("buffer %d: %w", i, errBufferSizeMismatch)
		}
	}
	return nil
}

func (p *gltfParserImpl) ReadURI(uri string) ([]byte, error) {
	if strings.HasPrefix(uri, "data:") {
		data, _, err := decodeDataURI(uri)
		return data, err
	}
	if p.fsys == nil {
		return nil, fmt.Errorf("external resource %q: no file system", uri)
	}
	name, err := url.PathUnescape(uri)
	if err != nil {
		return nil, fmt.Errorf("external resource %q: %w", uri, err)
	}
	data, err := fs.ReadFile(p.fsys, path.Clean(name))
	if err != nil {
		return nil, fmt.Errorf("external resource %q: %w", uri, err)
	}
	return data, nil
}

// decodeDataURI decodes a base64 data URI and returns its media type.
// Format: data:[<mediatype>][;base64],<data>
func decodeDataURI(uri string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", errInvalidDataURI
	}
	mimeType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("%w: unsupported encoding %q", errInvalidDataURI, header)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", errInvalidDataURI, err)
	}
	return data, mimeType, nil
}

func (p *gltfParserImpl) ReadBufferView(index int) ([]byte, error) {
	doc := p.document
	if doc == nil {
		return nil, errors.New("no document loaded")
	}
	if index < 0 || index >= len(doc.BufferViews) {
		return nil, fmt.Errorf("bufferView index %d out of range", index)
	}
	bv := &doc.BufferViews[index]
	if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
		return nil, fmt.Errorf("buffer index %d out of range", bv.Buffer)
	}
	data := doc.Buffers[bv.Buffer].Data
	end := bv.ByteOffset + bv.ByteLength
	if bv.ByteOffset < 0 || end > len(data) {
		return nil, fmt.Errorf("bufferView %d exceeds buffer bounds: offset=%d length=%d size=%d", index, bv.ByteOffset, bv.ByteLength, len(data))
	}
	return bytes.Clone(data[bv.ByteOffset:end]), nil
}

// elements returns the accessor and the byte slice of each of its elements.
func (p *gltfParserImpl) elements(index int) (*gltfAccessor, [][]byte, error) {
	doc := p.document
	if doc == nil {
		return nil, nil, errors.New("no document loaded")
	}
	if index < 0 || index >= len(doc.Accessors) {
		return nil, nil, fmt.Errorf("accessor index %d out of range", index)
	}
	acc := &doc.Accessors[index]
	if len(acc.Sparse) > 0 {
		return nil, nil, fmt.Errorf("accessor %d: sparse accessors are not supported", index)
	}
	if acc.BufferView == nil {
		return nil, nil, fmt.Errorf("accessor %d has no bufferView", index)
	}
	view, err := p.ReadBufferView(*acc.BufferView)
	if err != nil {
		return nil, nil, fmt.Errorf("accessor %d: %w", index, err)
	}

	size := componentSize(acc.ComponentType) * componentCount(acc.Type)
	if size == 0 {
		return nil, nil, fmt.Errorf("accessor %d: unsupported layout %s/%d", index, acc.Type, acc.ComponentType)
	}
	stride := size
	if bv := doc.BufferViews[*acc.BufferView]; bv.ByteStride != nil && *bv.ByteStride > 0 {
		stride = *bv.ByteStride
	}

	out := make([][]byte, acc.Count)
	for i := range out {
		start := acc.ByteOffset + i*stride
		if start+size > len(view) {
			return nil, nil, fmt.Errorf("accessor %d: element %d exceeds bufferView", index, i)
		}
		out[i] = view[start : start+size]
	}
	return acc, out, nil
}

func (p *gltfParserImpl) ReadFloats(index int, components int) ([]float32, error) {
	acc, elems, err := p.elements(index)
	if err != nil {
		return nil, err
	}
	if componentCount(acc.Type) != components {
		return nil, fmt.Errorf("accessor %d is %s, want %d components", index, acc.Type, components)
	}

	width := componentSize(acc.ComponentType)
	out := make([]float32, 0, len(elems)*components)
	for _, e := range elems {
		for c := range components {
			out = append(out, readComponent(e[c*width:], acc.ComponentType, acc.Normalized))
		}
	}
	return out, nil
}

func (p *gltfParserImpl) ReadIndices(index int) ([]uint32, error) {
	acc, elems, err := p.elements(index)
	if err != nil {
		return nil, err
	}
	if acc.Type != gltfTypeScalar {
		return nil, fmt.Errorf("index accessor %d is %s, want SCALAR", index, acc.Type)
	}

	out := make([]uint32, len(elems))
	for i, e := range elems {
		switch acc.ComponentType {
		case gltfComponentUnsignedByte:
			out[i] = uint32(e[0])
		case gltfComponentUnsignedShort:
			out[i] = uint32(binary.LittleEndian.Uint16(e))
		case gltfComponentUnsignedInt:
			out[i] = binary.LittleEndian.Uint32(e)
		default:
			return nil, fmt.Errorf("index accessor %d: unsupported component type %d", index, acc.ComponentType)
		}
	}
	return out, nil
}

// readComponent decodes one component. Normalized integers follow the glTF conversion rules.
func readComponent(b []byte, componentType int, normalized bool) float32 {
	var v, scale float32
	switch componentType {
	case gltfComponentFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case gltfComponentByte:
		v, scale = float32(int8(b[0])), 127
	case gltfComponentUnsignedByte:
		v, scale = float32(b[0]), 255
	case gltfComponentShort:
		v, scale = float32(int16(binary.LittleEndian.Uint16(b))), 32767
	case gltfComponentUnsignedShort:
		v, scale = float32(binary.LittleEndian.Uint16(b)), 65535
	case gltfComponentUnsignedInt:
		return float32(binary.LittleEndian.Uint32(b))
	}
	if !normalized {
		return v
	}
	return max(v/scale, -1)
}

func componentSize(componentType int) int {
	switch componentType {
	case gltfComponentByte, gltfComponentUnsignedByte:
		return 1
	case gltfComponentShort, gltfComponentUnsignedShort:
		return 2
	case gltfComponentUnsignedInt, gltfComponentFloat:
		return 4
	default:
		return 0
	}
}

func componentCount(accessorType string) int {
	switch accessorType {
	case gltfTypeScalar:
		return 1
	case gltfTypeVec2:
		return 2
	case gltfTypeVec3:
		return 3
	case gltfTypeVec4:
		return 4
	case gltfTypeMat4:
		return 16
	default:
		return 0
	}
}

func toVec2(f []float32) []mgl32.Vec2 {
	out := make([]mgl32.Vec2, len(f)/2)
	for i := range out {
		out[i] = mgl32.Vec2{f[2*i], f[2*i+1]}
	}
	return out
}

func toVec3(f []float32) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, len(f)/3)
	for i := range out {
		out[i] = mgl32.Vec3{f[3*i], f[3*i+1], f[3*i+2]}
	}
	return out
}

func toVec4(f []float32) []mgl32.Vec4 {
	out := make([]mgl32.Vec4, len(f)/4)
	for i := range out {
		out[i] = mgl32.Vec4{f[4*i], f[4*i+1], f[4*i+2], f[4*i+3]}
	}
	return out
}
