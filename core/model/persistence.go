package model

import (
	"archive/zip"
	"bytes"
	"encoding/gob"
	"encoding/json"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
)

const (
	// MetadataEntry is the zip entry holding the JSON metadata.
	MetadataEntry = "metadata.json"
	// legacyMetadataEntry is accepted when reading older packages.
	legacyMetadataEntry = "model.json"

	// ArtifactExt is the extension of artifact entries.
	ArtifactExt = ".bin"

	maxEntrySize = 256 << 20
)

// Metadata is the JSON document stored next to the artifact.
type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	IVs         []string `json:"ivs"`
	DVs         []string `json:"dvs"`
	// Model is the name of the artifact entry inside the package.
	Model string `json:"model"`
}

// Serialized is a model in transit: metadata plus the opaque artifact bytes.
type Serialized struct {
	Metadata Metadata
	Artifact []byte
}

// Validate checks that the package can be written and read back.
func (s *Serialized) Validate() error {
	if s == nil {
		return errors.NewValidationError("package", "nil package", nil)
	}
	md := s.Metadata
	if md.Name == "" {
		return errors.NewValidationError("name", "model name is empty", md.Name)
	}
	if md.Model == "" || md.Model == MetadataEntry || md.Model == legacyMetadataEntry ||
		strings.ContainsAny(md.Model, `/\`) || path.Clean(md.Model) != md.Model {
		return errors.NewValidationError("model", "invalid artifact entry name", md.Model)
	}
	if len(s.Artifact) == 0 {
		return errors.NewValidationError("artifact", "artifact is empty", len(s.Artifact))
	}
	return nil
}

// NewArtifactName returns a unique artifact entry name such as "OLS_<uuid>.bin".
func NewArtifactName(kind string) string {
	return kind + "_" + uuid.NewString() + ArtifactExt
}

// WritePackage writes s as a zip archive with the metadata entry and the
// artifact entry named by s.Metadata.Model.
//
// 使用例:
//
//	s, _ := ols.Serialize()
//	f, _ := os.Create("model.zip")
//	defer f.Close()
//	err := model.WritePackage(f, s)
func WritePackage(w io.Writer, s *Serialized) error {
	if err := s.Validate(); err != nil {
		return err
	}
	meta, err := json.MarshalIndent(s.Metadata, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode metadata")
	}

	zw := zip.NewWriter(w)
	for _, e := range []struct {
		name string
		data []byte
	}{
		{MetadataEntry, meta},
		{s.Metadata.Model, s.Artifact},
	} {
		fw, err := zw.Create(e.name)
		if err != nil {
			return errors.Wrapf(err, "create entry %s", e.name)
		}
		if _, err := fw.Write(e.data); err != nil {
			return errors.Wrapf(err, "write entry %s", e.name)
		}
	}
	return errors.Wrap(zw.Close(), "finish package")
}

// ReadPackage reads a package written by WritePackage. Both entries must be
// present; nothing is returned on failure.
func ReadPackage(r io.ReaderAt, size int64) (*Serialized, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.NewParseError("package", 0, err)
	}

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}

	mf, ok := entries[MetadataEntry]
	if !ok {
		if mf, ok = entries[legacyMetadataEntry]; !ok {
			return nil, errors.NewParseError("package", 0, errors.Newf("missing %s", MetadataEntry))
		}
	}
	raw, err := readEntry(mf)
	if err != nil {
		return nil, err
	}
	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, errors.NewParseError(mf.Name, 0, err)
	}

	af, ok := entries[md.Model]
	if !ok {
		return nil, errors.NewParseError("package", 0, errors.Newf("missing artifact %q", md.Model))
	}
	artifact, err := readEntry(af)
	if err != nil {
		return nil, err
	}

	s := &Serialized{Metadata: md, Artifact: artifact}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ReadPackageBytes is ReadPackage over an in-memory archive.
func ReadPackageBytes(b []byte) (*Serialized, error) {
	return ReadPackage(bytes.NewReader(b), int64(len(b)))
}

func readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxEntrySize {
		return nil, errors.NewValidationError(f.Name, "package entry too large", f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errors.NewParseError(f.Name, 0, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, errors.NewParseError(f.Name, 0, err)
	}
	return b, nil
}

// SaveModel はモデルをzipパッケージとしてファイルに保存する
//
// 使用例:
//
//	ols := linear.NewOLS()
//	// ... モデルの学習 ...
//	err := model.SaveModel(ols, "ols.zip")
func SaveModel(m Model, filename string) error {
	s, err := m.Serialize()
	if err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	if err := WritePackage(file, s); err != nil {
		file.Close()
		return err
	}
	return errors.Wrap(file.Close(), "failed to close file")
}

// LoadModel はファイルからパッケージを読み込み、名前に対応するモデルを復元する
func LoadModel(filename string) (Model, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	s, err := ReadPackageBytes(b)
	if err != nil {
		return nil, err
	}
	return Open(s)
}

// EncodeArtifact はartifactをgobでエンコードする
func EncodeArtifact(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, errors.Wrap(err, "failed to encode model")
	}
	return buf.Bytes(), nil
}

// DecodeArtifact はgobでエンコードされたartifactを読み込む
func DecodeArtifact(b []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(v); err != nil {
		return errors.NewParseError("artifact", 0, err)
	}
	return nil
}

var (
	kindsMu sync.RWMutex
	kinds   = make(map[string]Factory)
)

// Register makes a model kind loadable by Open. It panics if the name is
// registered twice.
func Register(name string, f Factory) {
	kindsMu.Lock()
	defer kindsMu.Unlock()
	if f == nil {
		panic("model: Register factory is nil")
	}
	if _, dup := kinds[name]; dup {
		panic("model: Register called twice for " + name)
	}
	kinds[name] = f
}

// Kinds returns the registered model names, sorted.
func Kinds() []string {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open creates a model of the kind recorded in the package and loads s into
// it. The kind is the artifact prefix ("OLS" in "OLS_<uuid>.bin"), falling
// back to the metadata name.
func Open(s *Serialized) (Model, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	kind, _, _ := strings.Cut(s.Metadata.Model, "_")
	kindsMu.RLock()
	f, ok := kinds[kind]
	if !ok {
		f, ok = kinds[s.Metadata.Name]
	}
	kindsMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "model kind %q", s.Metadata.Name)
	}
	m := f()
	if err := m.Load(s); err != nil {
		return nil, err
	}
	return m, nil
}
