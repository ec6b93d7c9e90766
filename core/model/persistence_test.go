package model

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YuminosukeSato/scigo-workbench/dataset"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
)

// constModel predicts a constant; it exists to exercise the package helpers.
type constModel struct {
	BaseEstimator
	Value float64
}

func newConstModel() Model {
	m := &constModel{}
	m.Init("Const", "constant predictor")
	return m
}

func (m *constModel) Fit(X, y *dataset.Frame) error {
	c := y.Columns()[0]
	sum := 0.0
	for _, v := range c.Floats() {
		sum += v
	}
	m.Value = sum / float64(c.Len())
	m.SetFitted(X.Names(), y.Names())
	return nil
}

func (m *constModel) Predict(X *dataset.Frame) (*dataset.Frame, error) {
	if err := m.RequireFitted("Predict"); err != nil {
		return nil, err
	}
	out := make([]float64, X.Len())
	for i := range out {
		out[i] = m.Value
	}
	return dataset.New(dataset.NewFloatColumn(m.DVs()[0], out))
}

func (m *constModel) Evaluate(X, y *dataset.Frame) (float64, error) {
	if err := m.RequireFitted("Evaluate"); err != nil {
		return 0, err
	}
	return 0, nil
}

func (m *constModel) Summary() (string, error) {
	if err := m.RequireFitted("Summary"); err != nil {
		return "", err
	}
	return "const", nil
}

func (m *constModel) Serialize() (*Serialized, error) {
	if err := m.RequireFitted("Serialize"); err != nil {
		return nil, err
	}
	b, err := EncodeArtifact(m.Value)
	if err != nil {
		return nil, err
	}
	return &Serialized{Metadata: m.Metadata(NewArtifactName("Const")), Artifact: b}, nil
}

func (m *constModel) Load(s *Serialized) error {
	if err := DecodeArtifact(s.Artifact, &m.Value); err != nil {
		return err
	}
	m.Restore(s.Metadata)
	return nil
}

func init() {
	Register("Const", newConstModel)
}

func fittedConst(t *testing.T) Model {
	t.Helper()
	X, _ := dataset.New(dataset.NewFloatColumn("x", []float64{1, 2, 3}))
	y, _ := dataset.New(dataset.NewFloatColumn("y", []float64{2, 4, 6}))
	m := newConstModel()
	if err := m.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	return m
}

func TestWriteReadPackage(t *testing.T) {
	s, err := fittedConst(t).Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if !strings.HasPrefix(s.Metadata.Model, "Const_") || !strings.HasSuffix(s.Metadata.Model, ArtifactExt) {
		t.Errorf("artifact name = %q", s.Metadata.Model)
	}

	var buf bytes.Buffer
	if err := WritePackage(&buf, s); err != nil {
		t.Fatalf("WritePackage() error = %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader() error = %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if len(names) != 2 || !names[MetadataEntry] || !names[s.Metadata.Model] {
		t.Errorf("package entries = %v", names)
	}

	got, err := ReadPackageBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadPackageBytes() error = %v", err)
	}
	if got.Metadata.Name != "Const" || got.Metadata.Description != "constant predictor" {
		t.Errorf("metadata = %+v", got.Metadata)
	}
	if strings.Join(got.Metadata.IVs, ",") != "x" || strings.Join(got.Metadata.DVs, ",") != "y" {
		t.Errorf("ivs/dvs = %v/%v", got.Metadata.IVs, got.Metadata.DVs)
	}
	if !bytes.Equal(got.Artifact, s.Artifact) {
		t.Error("artifact bytes differ")
	}
}

func TestMetadataJSONKeys(t *testing.T) {
	b, err := json.Marshal(Metadata{Name: "OLS", Model: "OLS_1.bin"})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"name", "description", "ivs", "dvs", "model"} {
		if _, ok := m[k]; !ok {
			t.Errorf("metadata json missing key %q: %s", k, b)
		}
	}
}

func writeZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, body); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReadPackageErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"not a zip", []byte("hello")},
		{"missing metadata", writeZip(t, map[string]string{"A_1.bin": "x"})},
		{"bad metadata json", writeZip(t, map[string]string{MetadataEntry: "{", "A_1.bin": "x"})},
		{"missing artifact", writeZip(t, map[string]string{MetadataEntry: `{"name":"A","model":"A_1.bin"}`})},
		{"empty artifact", writeZip(t, map[string]string{MetadataEntry: `{"name":"A","model":"A_1.bin"}`, "A_1.bin": ""})},
		{"artifact path escapes", writeZip(t, map[string]string{MetadataEntry: `{"name":"A","model":"../A_1.bin"}`, "../A_1.bin": "x"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ReadPackageBytes(tt.data)
			if err == nil {
				t.Fatalf("ReadPackageBytes() = %+v, want error", s)
			}
			if s != nil {
				t.Error("partial package returned on error")
			}
		})
	}
}

func TestReadPackageLegacyMetadata(t *testing.T) {
	data := writeZip(t, map[string]string{legacyMetadataEntry: `{"name":"A","description":"d","ivs":["x"],"dvs":["y"],"model":"A_1.bin"}`, "A_1.bin": "x"})
	s, err := ReadPackageBytes(data)
	if err != nil {
		t.Fatalf("ReadPackageBytes() error = %v", err)
	}
	if s.Metadata.Model != "A_1.bin" {
		t.Errorf("model = %q", s.Metadata.Model)
	}
}

func TestWritePackageRejectsInvalid(t *testing.T) {
	tests := []*Serialized{
		nil,
		{Metadata: Metadata{Model: "A_1.bin"}, Artifact: []byte{1}},
		{Metadata: Metadata{Name: "A"}, Artifact: []byte{1}},
		{Metadata: Metadata{Name: "A", Model: MetadataEntry}, Artifact: []byte{1}},
		{Metadata: Metadata{Name: "A", Model: "A_1.bin"}},
	}
	for i, s := range tests {
		var buf bytes.Buffer
		err := WritePackage(&buf, s)
		var ve *errors.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("case %d: error = %v, want ValidationError", i, err)
		}
		if buf.Len() != 0 {
			t.Errorf("case %d: wrote %d bytes", i, buf.Len())
		}
	}
}

func TestSaveLoadModel(t *testing.T) {
	m := fittedConst(t)
	path := filepath.Join(t.TempDir(), "const.zip")
	if err := SaveModel(m, path); err != nil {
		t.Fatalf("SaveModel() error = %v", err)
	}

	loaded, err := LoadModel(path)
	if err != nil {
		t.Fatalf("LoadModel() error = %v", err)
	}
	if !loaded.IsFitted() {
		t.Fatal("loaded model is not fitted")
	}
	if got := loaded.(*constModel).Value; got != 4 {
		t.Errorf("Value = %v, want 4", got)
	}
}

func TestSaveModelNotFitted(t *testing.T) {
	err := SaveModel(newConstModel(), filepath.Join(t.TempDir(), "x.zip"))
	if !errors.Is(err, errors.ErrModelNotFitted) {
		t.Errorf("SaveModel() error = %v, want ErrModelNotFitted", err)
	}
}

func TestOpenUnknownKind(t *testing.T) {
	_, err := Open(&Serialized{Metadata: Metadata{Name: "Nope", Model: "Nope_1.bin"}, Artifact: []byte{1}})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Open() error = %v, want ErrNotFound", err)
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Register() twice did not panic")
		}
	}()
	Register("Const", newConstModel)
}

func TestKinds(t *testing.T) {
	found := false
	for _, k := range Kinds() {
		if k == "Const" {
			found = true
		}
	}
	if !found {
		t.Errorf("Kinds() = %v, missing Const", Kinds())
	}
}
