package core

import (
	"context"
	"fmt"
	"io"

	"github.com/dosco/pipejin/core/internal/qerr"
	"github.com/dosco/pipejin/core/internal/sdata"
	"github.com/spf13/afero"
)

// Shape is a validated document shape.
type Shape = sdata.Shape

// FieldDescriptor describes one addressable field of a document.
type FieldDescriptor = sdata.FieldDescriptor

// FieldType marks a field as nested or scalar. Any marker other than
// nested is stored as scalar.
type FieldType = sdata.FieldType

const (
	FieldNested = sdata.FieldNested
	FieldScalar = sdata.FieldScalar
)

// NewShape builds a shape from descriptors keyed by field name and validates it.
func NewShape(fields map[string]FieldDescriptor) (*Shape, error) {
	s := sdata.New(fields)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseShape decodes a JSON or YAML shape description and validates it.
func ParseShape(data []byte) (*Shape, error) {
	return sdata.Parse(data)
}

// ShapeProvider loads the document shape. It is called once when the engine
// is created and again on every reload.
type ShapeProvider interface {
	LoadShape(ctx context.Context) (*Shape, error)
}

// StaticShapeProvider always returns the same shape.
type StaticShapeProvider struct {
	shape *Shape
}

func NewStaticShapeProvider(s *Shape) *StaticShapeProvider {
	return &StaticShapeProvider{shape: s}
}

func (p *StaticShapeProvider) LoadShape(ctx context.Context) (*Shape, error) {
	if p.shape == nil {
		return nil, qerr.Shape("", "no shape set")
	}
	if err := p.shape.Validate(); err != nil {
		return nil, err
	}
	return p.shape, nil
}

// FileShapeProvider reads the shape from a JSON or YAML file.
type FileShapeProvider struct {
	fs   afero.Fs
	path string
}

// NewFileShapeProvider returns a provider reading path from fs. Use
// afero.NewOsFs() for the local disk.
func NewFileShapeProvider(fs afero.Fs, path string) *FileShapeProvider {
	return &FileShapeProvider{fs: fs, path: path}
}

func (p *FileShapeProvider) LoadShape(ctx context.Context) (*Shape, error) {
	f, err := p.fs.Open(p.path)
	if err != nil {
		return nil, qerr.Shape(p.path, "%s", err)
	}
	defer f.Close() //nolint:errcheck

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, qerr.Shape(p.path, "%s", err)
	}
	return sdata.Parse(b)
}

// Path returns the file the shape is read from.
func (p *FileShapeProvider) Path() string {
	return p.path
}

// onDisk reports whether the file lives on the local disk and can be
// watched for changes.
func (p *FileShapeProvider) onDisk() bool {
	_, ok := p.fs.(*afero.OsFs)
	return ok
}

func (p *FileShapeProvider) String() string {
	return fmt.Sprintf("file:%s", p.path)
}
