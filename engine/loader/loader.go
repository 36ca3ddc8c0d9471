// Package loader imports static glTF 2.0 assets into scene data.
package loader

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Carmen-Shannon/oxy-hybrid/common"
	"github.com/Carmen-Shannon/oxy-hybrid/engine/scene"
)

// maxNodeDepth bounds the node hierarchy walk so a cyclic document cannot recurse forever.
const maxNodeDepth = 64

// Asset is the scene data imported from one glTF document. Render objects index Meshes,
// Materials and, through the materials, Textures from zero.
type Asset struct {
	Name      string
	Meshes    []*scene.Mesh
	Materials []scene.Material
	Textures  []common.TextureData
	Objects   []scene.RenderObject
}

// SceneOptions adds the asset to a scene. Apply them before any other mesh, material or
// texture option so the asset's indices stay valid.
//
// Returns:
//   - []scene.SceneBuilderOption: options for scene.NewScene
func (a *Asset) SceneOptions() []scene.SceneBuilderOption {
	return []scene.SceneBuilderOption{
		scene.WithMeshes(a.Meshes...),
		scene.WithMaterials(a.Materials...),
		scene.WithTextures(a.Textures...),
		scene.WithRenderObjects(a.Objects...),
	}
}

// Bounds returns the world-space bounds of every render object, zero for an empty asset.
func (a *Asset) Bounds() (minCorner, maxCorner mgl32.Vec3) {
	first := true
	for _, obj := range a.Objects {
		lo, hi := a.Meshes[obj.PrimitiveIndex].Bounds()
		for i := range 8 {
			corner := mgl32.Vec3{lo[0], lo[1], lo[2]}
			for axis := range 3 {
				if i&(1<<axis) != 0 {
					corner[axis] = hi[axis]
				}
			}
			p := mgl32.TransformCoordinate(corner, obj.Transform)
			if first {
				minCorner, maxCorner, first = p, p, false
				continue
			}
			for axis := range 3 {
				minCorner[axis] = math32.Min(minCorner[axis], p[axis])
				maxCorner[axis] = math32.Max(maxCorner[axis], p[axis])
			}
		}
	}
	return
}

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	cache map[string]*Asset

	maxTextureSize uint32
	decodeWorkers  int
	decodePool     worker.DynamicWorkerPool
}

// Loader imports glTF and GLB files and caches the resulting assets by name.
type Loader interface {
	// Load imports a .gltf or .glb file, returning the cached asset when the path was loaded
	// before. External buffers and images resolve relative to the file's directory.
	//
	// Parameters:
	//   - path: the file path to the model file
	//
	// Returns:
	//   - *Asset: the imported asset
	//   - error: error if the file cannot be read or imported
	Load(path string) (*Asset, error)

	// LoadFS imports a model from fsys, resolving external resources inside fsys.
	//
	// Parameters:
	//   - fsys: the file system holding the model and its resources
	//   - name: the slash-separated path of the model inside fsys, also the cache key
	//
	// Returns:
	//   - *Asset: the imported asset
	//   - error: error if the model cannot be read or imported
	LoadFS(fsys fs.FS, name string) (*Asset, error)

	// LoadReader imports a self-contained model from r and caches it under name. Only
	// embedded and data: URIs can be resolved.
	//
	// Parameters:
	//   - name: the cache key for the asset
	//   - r: the reader providing model data
	//   - isGLB: true if the reader provides GLB binary data
	//
	// Returns:
	//   - *Asset: the imported asset
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader, isGLB bool) (*Asset, error)

	// Get returns a cached asset, nil when name was never loaded.
	Get(name string) *Asset

	// Assets returns a copy of the cache.
	Assets() map[string]*Asset
}

var _ Loader = &loader{}

// NewLoader creates a Loader with the given options applied.
//
// Parameters:
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new Loader
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &loader{
		cache:          make(map[string]*Asset),
		maxTextureSize: DefaultMaxTextureSize,
		decodeWorkers:  4,
	}
	for _, option := range options {
		option(l)
	}
	l.decodePool = worker.NewDynamicWorkerPool(max(l.decodeWorkers, 1), 64, 1*time.Second)
	return l
}

func (l *loader) Load(path string) (*Asset, error) {
	if a := l.Get(path); a != nil {
		return a, nil
	}
	return l.importFS(path, os.DirFS(filepath.Dir(path)), filepath.Base(path))
}

func (l *loader) LoadFS(fsys fs.FS, name string) (*Asset, error) {
	if a := l.Get(name); a != nil {
		return a, nil
	}
	sub, err := fs.Sub(fsys, pathDir(name))
	if err != nil {
		return nil, fmt.Errorf("loader: %s: %w", name, err)
	}
	return l.importFS(name, sub, name[strings.LastIndex(name, "/")+1:])
}

func (l *loader) LoadReader(name string, r io.Reader, isGLB bool) (*Asset, error) {
	if a := l.Get(name); a != nil {
		return a, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("loader: %s: %w", name, err)
	}
	return l.importData(name, nil, data, isGLB)
}

func (l *loader) Get(name string) *Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cache[name]
}

func (l *loader) Assets() map[string]*Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]*Asset, len(l.cache))
	for k, v := range l.cache {
		out[k] = v
	}
	return out
}

func (l *loader) importFS(key string, fsys fs.FS, file string) (*Asset, error) {
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, fmt.Errorf("loader: %s: %w", key, err)
	}
	return l.importData(key, fsys, data, strings.EqualFold(filepath.Ext(file), ".glb"))
}

func (l *loader) importData(key string, fsys fs.FS, data []byte, isGLB bool) (*Asset, error) {
	start := time.Now()
	parser := newGLTFParser(fsys)
	if err := parser.Parse(data, isGLB); err != nil {
		return nil, fmt.Errorf("loader: %s: %w", key, err)
	}
	asset, err := l.build(key, parser)
	if err != nil {
		return nil, fmt.Errorf("loader: %s: %w", key, err)
	}

	l.mu.Lock()
	if cached, ok := l.cache[key]; ok {
		asset = cached
	} else {
		l.cache[key] = asset
	}
	l.mu.Unlock()

	common.Logger().Info("asset imported", "asset", key, "meshes", len(asset.Meshes), "materials", len(asset.Materials),
		"textures", len(asset.Textures), "objects", len(asset.Objects), "elapsed", time.Since(start))
	return asset, nil
}

// build converts the parsed document: every material, the meshes reachable from the default
// scene, and the images those materials reference.
func (l *loader) build(name string, parser gltfParser) (*Asset, error) {
	doc := parser.Document()
	if len(doc.Skins) > 0 || len(doc.Animations) > 0 {
		common.Logger().Warn("skins and animations are not imported", "asset", name, "skins", len(doc.Skins), "animations", len(doc.Animations))
	}

	asset := &Asset{Name: name}
	materials := newGLTFMaterialExtractor(parser)
	for i := range doc.Materials {
		m, err := materials.ExtractMaterial(i)
		if err != nil {
			return nil, err
		}
		asset.Materials = append(asset.Materials, m)
	}

	b := &assetBuilder{asset: asset, meshes: newGLTFMeshExtractor(parser), primitives: make(map[int][]importedPrimitive), base: make(map[int]int), defaultMaterial: -1}
	roots, err := sceneRoots(doc)
	if err != nil {
		return nil, err
	}
	for _, root := range roots {
		if err := b.visit(doc, root, mgl32.Ident4(), 0); err != nil {
			return nil, err
		}
	}
	if len(asset.Objects) == 0 {
		return nil, errors.New("document has no mesh instances")
	}

	if asset.Textures, err = l.decodeImages(parser, materials.Images()); err != nil {
		return nil, err
	}
	return asset, nil
}

// sceneRoots returns the root nodes of the default scene, or of every parentless node when
// the document declares no scene.
func sceneRoots(doc *gltfDocument) ([]int, error) {
	if len(doc.Scenes) > 0 {
		idx := 0
		if doc.Scene != nil {
			idx = *doc.Scene
		}
		if idx < 0 || idx >= len(doc.Scenes) {
			return nil, fmt.Errorf("scene index %d out of range", idx)
		}
		return doc.Scenes[idx].Nodes, nil
	}

	child := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(child) {
				child[c] = true
			}
		}
	}
	var roots []int
	for i, isChild := range child {
		if !isChild {
			roots = append(roots, i)
		}
	}
	return roots, nil
}

type assetBuilder struct {
	asset  *Asset
	meshes gltfMeshExtractor

	// primitives caches extracted glTF meshes; base records where each one starts in Asset.Meshes.
	primitives      map[int][]importedPrimitive
	base            map[int]int
	defaultMaterial int
}

func (b *assetBuilder) visit(doc *gltfDocument, index int, parent mgl32.Mat4, depth int) error {
	if depth > maxNodeDepth {
		return fmt.Errorf("node hierarchy deeper than %d, cyclic?", maxNodeDepth)
	}
	if index < 0 || index >= len(doc.Nodes) {
		return fmt.Errorf("node index %d out of range", index)
	}
	node := &doc.Nodes[index]
	world := parent.Mul4(nodeTransform(node))

	if node.Mesh != nil {
		prims, base, err := b.mesh(*node.Mesh)
		if err != nil {
			return err
		}
		for i, p := range prims {
			material, err := b.material(p.Material)
			if err != nil {
				return fmt.Errorf("node %d: %w", index, err)
			}
			b.asset.Objects = append(b.asset.Objects, scene.RenderObject{
				PrimitiveIndex: uint32(base + i),
				MaterialIndex:  material,
				Transform:      world,
			})
		}
	}
	for _, c := range node.Children {
		if err := b.visit(doc, c, world, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// mesh extracts a glTF mesh on first reference. Instances share the scene meshes.
func (b *assetBuilder) mesh(index int) ([]importedPrimitive, int, error) {
	if prims, ok := b.primitives[index]; ok {
		return prims, b.base[index], nil
	}
	prims, err := b.meshes.ExtractMesh(index)
	if err != nil {
		return nil, 0, err
	}
	b.primitives[index] = prims
	b.base[index] = len(b.asset.Meshes)
	for _, p := range prims {
		b.asset.Meshes = append(b.asset.Meshes, p.Mesh)
	}
	return prims, b.base[index], nil
}

// material maps a primitive's glTF material to an asset material, appending the glTF
// default material the first time a primitive has none.
func (b *assetBuilder) material(index int) (uint32, error) {
	if index >= 0 {
		if index >= len(b.asset.Materials) {
			return 0, fmt.Errorf("material index %d out of range", index)
		}
		return uint32(index), nil
	}
	if b.defaultMaterial < 0 {
		m := scene.NewMaterial("default", mgl32.Vec4{1, 1, 1, 1})
		m.MetallicFactor = 1
		b.defaultMaterial = len(b.asset.Materials)
		b.asset.Materials = append(b.asset.Materials, m)
	}
	return uint32(b.defaultMaterial), nil
}

// nodeTransform returns the local transform of a node: its matrix, or T * R * S.
func nodeTransform(n *gltfNode) mgl32.Mat4 {
	if n.Matrix != nil {
		return mgl32.Mat4(*n.Matrix)
	}
	t, r, s := mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1}
	if n.Translation != nil {
		t = *n.Translation
	}
	if n.Rotation != nil {
		q := *n.Rotation
		r = mgl32.Quat{W: q[3], V: mgl32.Vec3{q[0], q[1], q[2]}}
	}
	if n.Scale != nil {
		s = *n.Scale
	}
	return common.ComposeTRS(t, r, s)
}

// decodeImages decodes the referenced images on the decode pool, in slot order.
func (l *loader) decodeImages(parser gltfParser, images []int) ([]common.TextureData, error) {
	doc := parser.Document()
	out := make([]common.TextureData, len(images))
	errs := make([]error, len(images))

	var wg sync.WaitGroup
	wg.Add(len(images))
	for slot, index := range images {
		l.decodePool.SubmitTask(worker.Task{
			ID: slot,
			Do: func() (any, error) {
				defer wg.Done()
				img := &doc.Images[index]
				data, err := imageBytes(parser, img)
				if err == nil {
					out[slot], err = decodeTexture(data, l.maxTextureSize)
				}
				if err != nil {
					errs[slot] = fmt.Errorf("image %d (%s): %w", index, img.Name, err)
				}
				return nil, errs[slot]
			},
		})
	}
	wg.Wait()
	return out, errors.Join(errs...)
}

func imageBytes(parser gltfParser, img *gltfImage) ([]byte, error) {
	switch {
	case img.BufferView != nil:
		return parser.ReadBufferView(*img.BufferView)
	case img.URI != "":
		return parser.ReadURI(img.URI)
	default:
		return nil, errors.New("image has neither uri nor bufferView")
	}
}

func pathDir(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[:i]
	}
	return "."
}
