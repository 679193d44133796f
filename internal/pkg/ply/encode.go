// Package ply reads and writes the ASCII flavour of the PLY polygon file format.
//
// Files are a header declaring elements and their properties, followed by one line per element
// instance: vertices first, then (for meshes) faces as "3 a b c".
package ply

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/yungbote/pointgen-backend/internal/domain/geometry"
)

const ContentType = "model/ply"

// EncodePointCloud writes pc as an ASCII PLY vertex list. RGB channels, when all three are
// present, are written as 8-bit color properties.
func EncodePointCloud(w io.Writer, pc *geometry.PointCloud) error {
	if err := pc.Validate(); err != nil {
		return err
	}
	return encode(w, pc.Coords, pc.Channels, nil)
}

// EncodeMesh writes m as an ASCII PLY vertex list followed by a triangle face list.
func EncodeMesh(w io.Writer, m *geometry.Mesh) error {
	if err := m.Validate(); err != nil {
		return err
	}
	faces := m.Faces
	if faces == nil {
		faces = []geometry.Face{}
	}
	return encode(w, m.Verts, m.VertexChannels, faces)
}

// MarshalPointCloud is EncodePointCloud into a byte slice.
func MarshalPointCloud(pc *geometry.PointCloud) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodePointCloud(&buf, pc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalMesh is EncodeMesh into a byte slice.
func MarshalMesh(m *geometry.Mesh) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeMesh(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// faces == nil means "no face element" (point cloud); an empty slice still declares one.
func encode(w io.Writer, verts []geometry.Vec3, ch geometry.Channels, faces []geometry.Face) error {
	bw := bufio.NewWriter(w)
	color := ch.HasRGB()

	bw.WriteString("ply\nformat ascii 1.0\n")
	fmt.Fprintf(bw, "element vertex %d\n", len(verts))
	bw.WriteString("property float x\nproperty float y\nproperty float z\n")
	if color {
		bw.WriteString("property uchar red\nproperty uchar green\nproperty uchar blue\n")
	}
	if faces != nil {
		fmt.Fprintf(bw, "element face %d\n", len(faces))
		bw.WriteString("property list uchar int vertex_index\n")
	}
	bw.WriteString("end_header\n")

	var r, g, b []float32
	if color {
		r, g, b = ch["R"], ch["G"], ch["B"]
	}
	line := make([]byte, 0, 96)
	for i, v := range verts {
		line = line[:0]
		line = appendFloat(line, v[0])
		line = append(line, ' ')
		line = appendFloat(line, v[1])
		line = append(line, ' ')
		line = appendFloat(line, v[2])
		if color {
			line = append(line, ' ')
			line = strconv.AppendUint(line, uint64(toByte(r[i])), 10)
			line = append(line, ' ')
			line = strconv.AppendUint(line, uint64(toByte(g[i])), 10)
			line = append(line, ' ')
			line = strconv.AppendUint(line, uint64(toByte(b[i])), 10)
		}
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	for _, f := range faces {
		line = line[:0]
		line = append(line, '3')
		for _, idx := range f {
			line = append(line, ' ')
			line = strconv.AppendInt(line, int64(idx), 10)
		}
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func appendFloat(dst []byte, f float32) []byte {
	return strconv.AppendFloat(dst, float64(f), 'g', -1, 32)
}

// toByte truncates an intensity in [0,1] to 0..255, clamping out-of-range input.
func toByte(v float32) uint8 {
	s := v * 255
	switch {
	case s != s, s <= 0:
		return 0
	case s >= 255:
		return 255
	default:
		return uint8(s)
	}
}
