package ply

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/yungbote/pointgen-backend/internal/domain/geometry"
)

var ErrUnsupportedFormat = errors.New("ply: only ascii 1.0 is supported")

type property struct {
	name string
	list bool
}

type element struct {
	name  string
	count int
	props []property
}

// Decode parses an ASCII PLY file. Point clouds come back as a mesh with no faces. Color
// properties (red/green/blue) are returned as R/G/B channels scaled to [0,1].
func Decode(r io.Reader) (*geometry.Mesh, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	elems, err := readHeader(sc)
	if err != nil {
		return nil, err
	}

	out := &geometry.Mesh{}
	for _, el := range elems {
		switch el.name {
		case "vertex":
			if err := readVertices(sc, el, out); err != nil {
				return nil, err
			}
		case "face":
			if err := readFaces(sc, el, out); err != nil {
				return nil, err
			}
		default:
			for i := 0; i < el.count; i++ {
				if !sc.Scan() {
					return nil, unexpectedEOF(sc, el.name)
				}
			}
		}
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("ply: %w", err)
	}
	return out, nil
}

// Unmarshal is Decode over a byte slice.
func Unmarshal(b []byte) (*geometry.Mesh, error) {
	return Decode(bytes.NewReader(b))
}

func readHeader(sc *bufio.Scanner) ([]element, error) {
	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "ply" {
		return nil, errors.New("ply: missing magic")
	}
	var elems []element
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) < 3 || fields[1] != "ascii" || fields[2] != "1.0" {
				return nil, ErrUnsupportedFormat
			}
		case "comment", "obj_info":
		case "element":
			if len(fields) != 3 {
				return nil, fmt.Errorf("ply: malformed element line %q", sc.Text())
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("ply: bad element count %q", fields[2])
			}
			elems = append(elems, element{name: fields[1], count: n})
		case "property":
			if len(elems) == 0 {
				return nil, errors.New("ply: property before element")
			}
			cur := &elems[len(elems)-1]
			switch {
			case len(fields) == 5 && fields[1] == "list":
				cur.props = append(cur.props, property{name: fields[4], list: true})
			case len(fields) == 3:
				cur.props = append(cur.props, property{name: fields[2]})
			default:
				return nil, fmt.Errorf("ply: malformed property line %q", sc.Text())
			}
		case "end_header":
			return elems, nil
		default:
			return nil, fmt.Errorf("ply: unknown header keyword %q", fields[0])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("ply: missing end_header")
}

func readVertices(sc *bufio.Scanner, el element, out *geometry.Mesh) error {
	idx := map[string]int{}
	for i, p := range el.props {
		if p.list {
			return errors.New("ply: list property on vertex element")
		}
		idx[p.name] = i
	}
	for _, axis := range []string{"x", "y", "z"} {
		if _, ok := idx[axis]; !ok {
			return fmt.Errorf("ply: vertex element missing %q", axis)
		}
	}
	_, hasR := idx["red"]
	_, hasG := idx["green"]
	_, hasB := idx["blue"]
	color := hasR && hasG && hasB

	out.Verts = make([]geometry.Vec3, 0, el.count)
	if color {
		out.VertexChannels = geometry.Channels{
			"R": make([]float32, 0, el.count),
			"G": make([]float32, 0, el.count),
			"B": make([]float32, 0, el.count),
		}
	}
	for i := 0; i < el.count; i++ {
		if !sc.Scan() {
			return unexpectedEOF(sc, "vertex")
		}
		fields := strings.Fields(sc.Text())
		if len(fields) != len(el.props) {
			return fmt.Errorf("ply: vertex %d has %d values, want %d", i, len(fields), len(el.props))
		}
		var v geometry.Vec3
		for a, axis := range []string{"x", "y", "z"} {
			f, err := strconv.ParseFloat(fields[idx[axis]], 32)
			if err != nil {
				return fmt.Errorf("ply: vertex %d %s: %w", i, axis, err)
			}
			v[a] = float32(f)
		}
		out.Verts = append(out.Verts, v)
		if color {
			for _, pair := range [][2]string{{"R", "red"}, {"G", "green"}, {"B", "blue"}} {
				c, err := strconv.ParseUint(fields[idx[pair[1]]], 10, 8)
				if err != nil {
					return fmt.Errorf("ply: vertex %d %s: %w", i, pair[1], err)
				}
				out.VertexChannels[pair[0]] = append(out.VertexChannels[pair[0]], float32(c)/255)
			}
		}
	}
	return nil
}

func readFaces(sc *bufio.Scanner, el element, out *geometry.Mesh) error {
	if len(el.props) != 1 || !el.props[0].list {
		return errors.New("ply: face element must have exactly one list property")
	}
	out.Faces = make([]geometry.Face, 0, el.count)
	for i := 0; i < el.count; i++ {
		if !sc.Scan() {
			return unexpectedEOF(sc, "face")
		}
		fields := strings.Fields(sc.Text())
		if len(fields) != 4 || fields[0] != "3" {
			return fmt.Errorf("ply: face %d is not a triangle", i)
		}
		var f geometry.Face
		for k := 0; k < 3; k++ {
			n, err := strconv.Atoi(fields[k+1])
			if err != nil {
				return fmt.Errorf("ply: face %d: %w", i, err)
			}
			f[k] = n
		}
		out.Faces = append(out.Faces, f)
	}
	return nil
}

func unexpectedEOF(sc *bufio.Scanner, what string) error {
	if err := sc.Err(); err != nil {
		return err
	}
	return fmt.Errorf("ply: unexpected end of file in %s element: %w", what, io.ErrUnexpectedEOF)
}
