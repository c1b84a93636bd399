package extraction

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cnic-overlay/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResult = `{
  "name": {"value": "ALI", "confidence": 0.95, "bbox": [[10,10],[50,10],[50,30],[10,30]]},
  "husband_name": null,
  "gender": {"value": "Male", "bbox": null, "confidence": null},
  "cnic_number": {"value": "12345-1234567-1", "confidence": 0.71, "bbox": [[5.5,60],[90,60],[90,75],[5.5,75]]},
  "date_of_birth": {"value": "01.01.1990", "confidence": 0.5, "bbox": []}
}`

func TestParsePreservesOrder(t *testing.T) {
	result, err := Parse([]byte(sampleResult))
	require.NoError(t, err)

	var names []string
	for _, f := range result.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"name", "husband_name", "gender", "cnic_number", "date_of_birth"}, names)
}

func TestParseFields(t *testing.T) {
	result, err := Parse([]byte(sampleResult))
	require.NoError(t, err)

	name, ok := result.Get("name")
	require.True(t, ok)
	require.NotNil(t, name.Value)
	assert.Equal(t, "ALI", *name.Value)
	require.NotNil(t, name.Confidence)
	assert.Equal(t, 0.95, *name.Confidence)
	assert.Equal(t, []geometry.Point2D{{X: 10, Y: 10}, {X: 50, Y: 10}, {X: 50, Y: 30}, {X: 10, Y: 30}}, name.Polygon)

	husband, ok := result.Get("husband_name")
	require.True(t, ok)
	assert.Nil(t, husband.Value)
	assert.Nil(t, husband.Confidence)
	assert.Nil(t, husband.Polygon)

	gender, _ := result.Get("gender")
	assert.Nil(t, gender.Confidence)
	assert.Nil(t, gender.Polygon, "null bbox is absent")

	dob, _ := result.Get("date_of_birth")
	assert.NotNil(t, dob.Polygon, "empty bbox is present")
	assert.Empty(t, dob.Polygon)

	cnic, _ := result.Get("cnic_number")
	assert.Equal(t, 5.5, cnic.Polygon[0].X)
}

func TestParseRejectsContractViolations(t *testing.T) {
	tests := map[string]string{
		"not json":         `{"name":`,
		"not an object":    `[1,2,3]`,
		"string field":     `{"name": "ALI"}`,
		"string conf":      `{"name": {"confidence": "high"}}`,
		"short vertex":     `{"name": {"bbox": [[1]]}}`,
		"non-numeric bbox": `{"name": {"bbox": [["a","b"]]}}`,
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(payload))
			assert.ErrorIs(t, err, ErrInvalidResult)
		})
	}
}

func TestParseAcceptsOutOfRangeConfidence(t *testing.T) {
	result, err := Parse([]byte(`{"a": {"confidence": 1.7, "bbox": [[0,0]]}}`))
	require.NoError(t, err)

	a, _ := result.Get("a")
	assert.Equal(t, 1.7, *a.Confidence)
	assert.Len(t, a.Polygon, 1)
}

func TestResultSetKeepsPosition(t *testing.T) {
	r := NewResult()
	r.Set("a", Field{})
	r.Set("b", Field{})
	r.Set("a", Field{Value: String("x")})

	fields := r.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, "a", fields[0].Name)
	assert.Equal(t, "x", *fields[0].Value)
	assert.Equal(t, 2, r.Len())

	var nilResult *Result
	assert.Zero(t, nilResult.Len())
	assert.Nil(t, nilResult.Fields())
}

func TestMarshalRoundTripKeepsOrder(t *testing.T) {
	result, err := Parse([]byte(sampleResult))
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, result.Fields(), again.Fields())
}

func TestClientExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/parse", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()

		data, _ := io.ReadAll(file)
		assert.Equal(t, "card.png", header.Filename)
		assert.Equal(t, "png-bytes", string(data))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleResult))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", 5*time.Second)
	result, err := client.Extract(context.Background(), "/tmp/card.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, 5, result.Len())
}

func TestClientExtractError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "No image file provided"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	_, err := client.Extract(context.Background(), "card.png", strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No image file provided")
	assert.Contains(t, err.Error(), "400")
}

func TestClientRequiresURL(t *testing.T) {
	_, err := NewClient("", time.Second).Extract(context.Background(), "a.png", strings.NewReader(""))
	assert.Error(t, err)
}
