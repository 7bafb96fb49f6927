package inference

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayli-app/ocrserve/internal/ocr"
)

// =============================================================================
// ImageList
// =============================================================================

func TestImageList_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    ImageList
		wantErr bool
	}{
		{"single string", `{"images": "abc"}`, ImageList{"abc"}, false},
		{"empty string", `{"images": ""}`, nil, false},
		{"list", `{"images": ["abc", "def"]}`, ImageList{"abc", "def"}, false},
		{"empty list", `{"images": []}`, ImageList{}, false},
		{"null", `{"images": null}`, nil, false},
		{"absent", `{}`, nil, false},
		{"number", `{"images": 5}`, nil, true},
		{"object", `{"images": {"a": "b"}}`, nil, true},
		{"list of numbers", `{"images": [1, 2]}`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			err := json.Unmarshal([]byte(tt.body), &req)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Images)
		})
	}
}

func TestImageList_StringEqualsSingletonList(t *testing.T) {
	var single, list Request
	require.NoError(t, json.Unmarshal([]byte(`{"images": "aGVsbG8="}`), &single))
	require.NoError(t, json.Unmarshal([]byte(`{"images": ["aGVsbG8="]}`), &list))
	assert.Equal(t, list.Images, single.Images)
}

// =============================================================================
// Response
// =============================================================================

func TestResponse_JSON(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		data, err := json.Marshal(Succeeded([]ocr.ImageResult{ocr.NewImageResult(0, nil)}))
		require.NoError(t, err)
		assert.JSONEq(t, `{"success":true,"results":[{"text_lines":[],"image_index":0,"total_lines":0}]}`, string(data))
	})

	t.Run("input failure", func(t *testing.T) {
		data, err := json.Marshal(Failed(inputError(ErrNoImages)))
		require.NoError(t, err)
		assert.JSONEq(t, `{"success":false,"error":"No images provided"}`, string(data))
	})

	t.Run("image failure", func(t *testing.T) {
		data, err := json.Marshal(Failed(imageError(KindDecode, 2, errors.New("bad data"))))
		require.NoError(t, err)
		assert.JSONEq(t, `{"success":false,"error":"Image 3 processing failed: bad data"}`, string(data))
	})

	t.Run("internal failure carries traceback", func(t *testing.T) {
		resp := Failed(errors.New("boom"))
		assert.Equal(t, "boom", resp.Error)
		assert.Contains(t, resp.Traceback, "boom")
	})
}

func TestErrorChain(t *testing.T) {
	root := errors.New("root cause")
	wrapped := AsError(errors.Join(root))
	assert.Equal(t, KindInternal, wrapped.Kind)
	assert.Contains(t, wrapped.Trace, "root cause")
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "input", KindInput.String())
	assert.Equal(t, "decode", KindDecode.String())
	assert.Equal(t, "inference", KindInference.String())
	assert.Equal(t, "internal", KindInternal.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
