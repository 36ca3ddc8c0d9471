package shader

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func process(t *testing.T, files fstest.MapFS, name string, defines Defines, spec Specialization) (Processed, error) {
	t.Helper()
	return NewPreProcessor(files, nil).Process(name, defines, spec)
}

func TestProcessHeaderIncludedOnce(t *testing.T) {
	files := fstest.MapFS{
		"main.wgsl": {Data: []byte("//@oxy:include camera\n//@oxy:include camera\nfn main() {}\n")},
	}
	out, err := process(t, files, "main.wgsl", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out.Source, "struct CameraUniform"))
	assert.Equal(t, []string{"main.wgsl"}, out.Files)
}

func TestProcessRelativeIncludes(t *testing.T) {
	files := fstest.MapFS{
		"stages/main.wgsl": {Data: []byte("//@oxy:include ../lib/common.wgsl\n//@oxy:include ../lib/extra.wgsl\nfn main() {}\n")},
		"lib/common.wgsl":  {Data: []byte("const COMMON: u32 = 1u;\n")},
		"lib/extra.wgsl":   {Data: []byte("//@oxy:include common.wgsl\nconst EXTRA: u32 = 2u;\n")},
	}
	out, err := process(t, files, "stages/main.wgsl", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"stages/main.wgsl", "lib/common.wgsl", "lib/extra.wgsl"}, out.Files)
	assert.Equal(t, 1, strings.Count(out.Source, "const COMMON"))
	assert.Less(t, strings.Index(out.Source, "COMMON"), strings.Index(out.Source, "EXTRA"))
}

func TestProcessIncludeErrors(t *testing.T) {
	tests := map[string]fstest.MapFS{
		"cycle": {
			"a.wgsl": {Data: []byte("//@oxy:include b.wgsl\n")},
			"b.wgsl": {Data: []byte("//@oxy:include a.wgsl\n")},
		},
		"missing": {
			"a.wgsl": {Data: []byte("//@oxy:include nowhere.wgsl\n")},
		},
		"unknown annotation": {
			"a.wgsl": {Data: []byte("//@oxy:import b.wgsl\n")},
		},
		"include without argument": {
			"a.wgsl": {Data: []byte("//@oxy:include\n")},
		},
	}
	for name, files := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := process(t, files, "a.wgsl", nil, nil)
			assert.Error(t, err)
		})
	}
}

func TestProcessConditionals(t *testing.T) {
	src := strings.Join([]string{
		"#ifdef A",
		"a_on",
		"#ifdef B",
		"a_and_b",
		"#endif",
		"#else",
		"a_off",
		"#endif",
		"#ifndef B",
		"b_off",
		"#endif",
	}, "\n")
	files := fstest.MapFS{"main.wgsl": {Data: []byte(src)}}

	tests := []struct {
		name    string
		defines Defines
		want    []string
		absent  []string
	}{
		{"none", nil, []string{"a_off", "b_off"}, []string{"a_on", "a_and_b"}},
		{"presence", Defines{"A": nil}, []string{"a_on", "b_off"}, []string{"a_off", "a_and_b"}},
		{"false counts as absent", Defines{"A": false, "B": false}, []string{"a_off", "b_off"}, []string{"a_on"}},
		{"nested", Defines{"A": nil, "B": true}, []string{"a_on", "a_and_b"}, []string{"a_off", "b_off"}},
		{"inactive parent", Defines{"B": nil}, []string{"a_off"}, []string{"a_and_b", "b_off"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := process(t, files, "main.wgsl", tt.defines, nil)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out.Source, w)
			}
			for _, a := range tt.absent {
				assert.NotContains(t, out.Source, a)
			}
		})
	}
}

func TestProcessConditionalErrors(t *testing.T) {
	tests := map[string]string{
		"stray else":        "#else\n",
		"stray endif":       "#endif\n",
		"unterminated":      "#ifdef A\nfoo\n",
		"second else":       "#ifdef A\n#else\n#else\n#endif\n",
		"unknown directive": "#define A 1\n",
		"ifdef without arg": "#ifdef\n#endif\n",
		"endif with arg":    "#ifdef A\n#endif A\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			files := fstest.MapFS{"main.wgsl": {Data: []byte(src)}}
			_, err := process(t, files, "main.wgsl", nil, nil)
			assert.Error(t, err)
		})
	}
}

func TestProcessConditionalIsPerFile(t *testing.T) {
	files := fstest.MapFS{
		"main.wgsl": {Data: []byte("#ifdef A\n//@oxy:include open.wgsl\n#endif\n")},
		"open.wgsl": {Data: []byte("#ifdef B\n")},
	}
	_, err := process(t, files, "main.wgsl", Defines{"A": nil}, nil)
	assert.ErrorContains(t, err, "open.wgsl")
}

func TestDefinePrelude(t *testing.T) {
	files := fstest.MapFS{"main.wgsl": {Data: []byte("fn main() {}\n")}}
	out, err := process(t, files, "main.wgsl", Defines{
		"LIGHT_COUNT": uint32(3),
		"SCALE":       float32(0.5),
		"OFFSET":      -2,
		"ENABLED":     true,
		"ALPHA_TEST":  nil,
	}, nil)
	require.NoError(t, err)

	want := "const ENABLED = true;\nconst LIGHT_COUNT = 3u;\nconst OFFSET = -2i;\nconst SCALE = 0.5f;\nfn main() {}\n"
	assert.Equal(t, want, out.Source)
}

func TestDefinePreludeErrors(t *testing.T) {
	files := fstest.MapFS{"main.wgsl": {Data: []byte("fn main() {}\n")}}
	for name, defines := range map[string]Defines{
		"not an identifier": {"1X": nil},
		"unsupported value": {"NAME": "text"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := process(t, files, "main.wgsl", defines, nil)
			assert.Error(t, err)
		})
	}
}

func TestSpecialization(t *testing.T) {
	src := "override TILE_X: u32 = 8u;\noverride TILE_Y: u32 = 8u;\n@id(2) override SCALE: f32;\noverride FLIP = false;\n"
	files := fstest.MapFS{"main.wgsl": {Data: []byte(src)}}

	out, err := process(t, files, "main.wgsl", nil, Specialization{"TILE_X": 16, "SCALE": 2, "FLIP": true})
	require.NoError(t, err)

	assert.Contains(t, out.Source, "const TILE_X: u32 = 16u;")
	assert.Contains(t, out.Source, "const TILE_Y: u32 = 8u;")
	assert.Contains(t, out.Source, "const SCALE: f32 = 2f;")
	assert.Contains(t, out.Source, "const FLIP = true;")
	assert.NotContains(t, out.Source, "override")
}

func TestSpecializationErrors(t *testing.T) {
	files := fstest.MapFS{"main.wgsl": {Data: []byte("override TILE_X: u32 = 8u;\noverride SCALE: f32;\n")}}
	tests := map[string]Specialization{
		"override without value": {"TILE_X": 4},
		"unknown name":           {"SCALE": 1, "TILE_Z": 4},
		"negative unsigned":      {"SCALE": 1, "TILE_X": -4},
		"wrong kind":             {"SCALE": true},
	}
	for name, spec := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := process(t, files, "main.wgsl", nil, spec)
			assert.Error(t, err)
		})
	}
}
