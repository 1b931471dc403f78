// Package mesh reads and writes binary STL streams and re-expresses them
// under a rigid transform.
package mesh

import (
	"encoding/binary"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/onshape-robotics/toolkit/spatialmath"
)

const (
	headerSize   = 80
	triangleSize = 50
)

// Triangle is one facet of a binary STL file.
type Triangle struct {
	Normal    r3.Vector
	Vertices  [3]r3.Vector
	Attribute uint16
}

func getVector(b []byte) r3.Vector {
	return r3.Vector{
		X: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[0:]))),
		Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4:]))),
		Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(b[8:]))),
	}
}

func putVector(b []byte, v r3.Vector) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(float32(v.X)))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(float32(v.Y)))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(float32(v.Z)))
}

// DecodeSTL parses a binary STL stream into its header and facets.
func DecodeSTL(data []byte) ([]byte, []Triangle, error) {
	if len(data) < headerSize+4 {
		return nil, nil, errors.Errorf("stl stream too short: %d bytes", len(data))
	}
	count := binary.LittleEndian.Uint32(data[headerSize:])
	expected := headerSize + 4 + int(count)*triangleSize
	if len(data) < expected {
		return nil, nil, errors.Errorf("stl stream truncated: have %d bytes, need %d for %d facets",
			len(data), expected, count)
	}

	header := make([]byte, headerSize)
	copy(header, data)

	triangles := make([]Triangle, count)
	for i := range triangles {
		facet := data[headerSize+4+i*triangleSize:]
		triangles[i] = Triangle{
			Normal: getVector(facet),
			Vertices: [3]r3.Vector{
				getVector(facet[12:]),
				getVector(facet[24:]),
				getVector(facet[36:]),
			},
			Attribute: binary.LittleEndian.Uint16(facet[48:]),
		}
	}
	return header, triangles, nil
}

// EncodeSTL serializes facets back into a binary STL stream.
func EncodeSTL(header []byte, triangles []Triangle) []byte {
	out := make([]byte, headerSize+4+len(triangles)*triangleSize)
	copy(out, header)
	binary.LittleEndian.PutUint32(out[headerSize:], uint32(len(triangles)))
	for i, tri := range triangles {
		facet := out[headerSize+4+i*triangleSize:]
		putVector(facet, tri.Normal)
		putVector(facet[12:], tri.Vertices[0])
		putVector(facet[24:], tri.Vertices[1])
		putVector(facet[36:], tri.Vertices[2])
		binary.LittleEndian.PutUint16(facet[48:], tri.Attribute)
	}
	return out
}

// TransformSTL applies a rigid transform to every facet of a binary STL
// stream: vertices move with the full transform, normals with its rotation.
func TransformSTL(data []byte, tf spatialmath.Transform) ([]byte, error) {
	header, triangles, err := DecodeSTL(data)
	if err != nil {
		return nil, err
	}
	rot := tf.Rotation()
	for i := range triangles {
		triangles[i].Normal = rot.Apply(triangles[i].Normal)
		for j := range triangles[i].Vertices {
			triangles[i].Vertices[j] = tf.Apply(triangles[i].Vertices[j])
		}
	}
	return EncodeSTL(header, triangles), nil
}
