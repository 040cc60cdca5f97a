package processor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/tablescan-worker/internal/table"
)

const visionResponse = `{
  "responses": [{
    "fullTextAnnotation": {
      "pages": [{
        "blocks": [{
          "paragraphs": [{
            "words": [{
              "symbols": [
                {"text": "A", "confidence": 0.98,
                 "boundingBox": {"vertices": [{}, {"x": 10}, {"x": 10, "y": 10}, {"y": 10}]}},
                {"text": "B",
                 "boundingBox": {"vertices": [{"x": 12, "y": 1}, {"x": 22, "y": 1}, {"x": 22, "y": 11}, {"x": 12, "y": 11}]}}
              ]
            }]
          }]
        }]
      }]
    }
  }]
}`

func newVisionServer(t *testing.T, body string, seen *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if seen != nil {
			require.NoError(t, json.Unmarshal(raw, seen))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVisionRecognize(t *testing.T) {
	var seen map[string]interface{}
	srv := newVisionServer(t, visionResponse, &seen)

	v, err := NewVisionOCR(context.Background(), &VisionConfig{Endpoint: srv.URL + "/", Languages: []string{"ja"}})
	require.NoError(t, err)

	res, err := v.Recognize(context.Background(), []byte("image-bytes"))
	require.NoError(t, err)
	require.Equal(t, "vision", res.Engine)
	require.Equal(t, 2, res.Symbols)

	sym := res.Annotation.Pages[0].Blocks[0].Paragraphs[0].Words[0].Symbols[0]
	require.Equal(t, "A", sym.Text)
	require.InDelta(t, 0.98, sym.Confidence, 1e-9)
	require.Equal(t, table.Polygon{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}, sym.Bounds)

	req := seen["requests"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("image-bytes")), req["image"].(map[string]interface{})["content"])
	require.Equal(t, documentTextDetection, req["features"].([]interface{})[0].(map[string]interface{})["type"])
	require.Equal(t, []interface{}{"ja"}, req["imageContext"].(map[string]interface{})["languageHints"])
}

func TestVisionRecognizeNoText(t *testing.T) {
	srv := newVisionServer(t, `{"responses": [{}]}`, nil)

	v, err := NewVisionOCR(context.Background(), &VisionConfig{Endpoint: srv.URL + "/"})
	require.NoError(t, err)

	res, err := v.Recognize(context.Background(), []byte("blank"))
	require.NoError(t, err)
	require.Zero(t, res.Symbols)
	require.Empty(t, table.Reconstruct(res.Annotation, table.DefaultOptions()))
}

func TestVisionRecognizeImageError(t *testing.T) {
	srv := newVisionServer(t, `{"responses": [{"error": {"code": 3, "message": "Bad image data."}}]}`, nil)

	v, err := NewVisionOCR(context.Background(), &VisionConfig{Endpoint: srv.URL + "/"})
	require.NoError(t, err)

	_, err = v.Recognize(context.Background(), []byte("junk"))
	require.ErrorContains(t, err, "Bad image data.")
}
