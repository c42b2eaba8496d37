// Package bvhio implements a small versioned binary blob format a host can
// cache a built Hierarchy into, and reload without rebuilding. The blob
// format is part of the core's interface; actual storage is the host's job.
package bvhio

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/Herdi2/GPU-Raytracer/pkg/core"
)

const (
	magic         = "BVH\x00"
	formatVersion = uint32(1)

	bvhTypeBinary = uint8(2)
	bvhTypeWide4  = uint8(4)
	bvhTypeWide8  = uint8(8)

	// CWBVHNodeByteSize is the canonical on-disk/on-GPU size of one CWBVH
	// node: P as 3 float32 (12) + E (3) + IMask (1) + BaseIndexChild (4) +
	// BaseIndexTriangle (4) + Meta (8) + QLo (24) + QHi (24) = 80 bytes. The
	// in-memory core.CWBVHNode keeps P as a float64 Vec3 for quantization
	// precision during construction; only the persisted/GPU form narrows it
	// to float32.
	CWBVHNodeByteSize = 80
)

var (
	// ErrBadMagic is returned by Decode when the header's magic bytes do
	// not match, i.e. the stream is not a bvhio blob at all.
	ErrBadMagic = errors.New("bvhio: bad magic header")
	// ErrUnsupportedVersion is returned by Decode when the header's version
	// field does not match formatVersion.
	ErrUnsupportedVersion = errors.New("bvhio: unsupported format version")
)

// Encode writes h and indices to w in the package's persisted format.
func Encode(w io.Writer, h core.Hierarchy, indices []uint32) error {
	var bvhType uint8
	var nodeCount int
	switch {
	case h.Binary != nil:
		bvhType, nodeCount = bvhTypeBinary, len(h.Binary.Nodes)
	case h.Wide4 != nil:
		bvhType, nodeCount = bvhTypeWide4, len(h.Wide4.Nodes)
	case h.Wide8 != nil:
		bvhType, nodeCount = bvhTypeWide8, len(h.Wide8.Nodes)
	default:
		return errors.New("bvhio: empty hierarchy")
	}

	if _, err := io.WriteString(w, magic); err != nil {
		return errors.Wrap(err, "bvhio: write magic")
	}
	if err := writeAll(w, formatVersion, bvhType, uint32(nodeCount), uint32(len(indices))); err != nil {
		return errors.Wrap(err, "bvhio: write header")
	}

	var err error
	switch bvhType {
	case bvhTypeBinary:
		err = encodeBinary(w, h.Binary)
	case bvhTypeWide4:
		err = encodeWide4(w, h.Wide4)
	case bvhTypeWide8:
		err = encodeWide8(w, h.Wide8)
	}
	if err != nil {
		return err
	}

	for _, idx := range indices {
		if err := binary.Write(w, binary.LittleEndian, idx); err != nil {
			return errors.Wrap(err, "bvhio: write index")
		}
	}
	return nil
}

// Decode reads a hierarchy and its triangle-index permutation back from r.
func Decode(r io.Reader) (core.Hierarchy, []uint32, error) {
	gotMagic := make([]byte, len(magic))
	if _, err := io.ReadFull(r, gotMagic); err != nil {
		return core.Hierarchy{}, nil, errors.Wrap(err, "bvhio: read magic")
	}
	if string(gotMagic) != magic {
		return core.Hierarchy{}, nil, ErrBadMagic
	}

	var version uint32
	var bvhType uint8
	var nodeCount, indexCount uint32
	if err := readAll(r, &version, &bvhType, &nodeCount, &indexCount); err != nil {
		return core.Hierarchy{}, nil, errors.Wrap(err, "bvhio: read header")
	}
	if version != formatVersion {
		return core.Hierarchy{}, nil, ErrUnsupportedVersion
	}

	var h core.Hierarchy
	var err error
	switch bvhType {
	case bvhTypeBinary:
		h.Binary, err = decodeBinary(r, int(nodeCount))
	case bvhTypeWide4:
		h.Wide4, err = decodeWide4(r, int(nodeCount))
	case bvhTypeWide8:
		h.Wide8, err = decodeWide8(r, int(nodeCount))
	default:
		err = errors.Errorf("bvhio: unknown bvh_type %d", bvhType)
	}
	if err != nil {
		return core.Hierarchy{}, nil, err
	}

	indices := make([]uint32, indexCount)
	for i := range indices {
		if err := binary.Read(r, binary.LittleEndian, &indices[i]); err != nil {
			return core.Hierarchy{}, nil, errors.Wrap(err, "bvhio: read index")
		}
	}
	return h, indices, nil
}

func encodeBinary(w io.Writer, bvh *core.BVH2) error {
	for _, n := range bvh.Nodes {
		if err := writeAABB32(w, n.Box); err != nil {
			return err
		}
		if err := writeAll(w, n.Left, n.Count); err != nil {
			return errors.Wrap(err, "bvhio: write BVH2Node")
		}
	}
	return nil
}

func decodeBinary(r io.Reader, nodeCount int) (*core.BVH2, error) {
	nodes := make([]core.BVH2Node, nodeCount)
	for i := range nodes {
		box, err := readAABB32(r)
		if err != nil {
			return nil, err
		}
		var left int32
		var count uint32
		if err := readAll(r, &left, &count); err != nil {
			return nil, errors.Wrap(err, "bvhio: read BVH2Node")
		}
		nodes[i] = core.BVH2Node{Box: box, Left: left, Count: count}
	}
	return &core.BVH2{Nodes: nodes}, nil
}

func encodeWide4(w io.Writer, bvh *core.BVH4) error {
	for _, n := range bvh.Nodes {
		if err := writeAABB32(w, n.Box); err != nil {
			return err
		}
		for _, cb := range n.ChildBox {
			if err := writeAABB32(w, cb); err != nil {
				return err
			}
		}
		if err := writeAll(w, n.ChildIndex, n.ChildCount); err != nil {
			return errors.Wrap(err, "bvhio: write BVH4Node")
		}
	}
	return nil
}

func decodeWide4(r io.Reader, nodeCount int) (*core.BVH4, error) {
	nodes := make([]core.BVH4Node, nodeCount)
	for i := range nodes {
		box, err := readAABB32(r)
		if err != nil {
			return nil, err
		}
		var childBox [4]core.AABB
		for c := range childBox {
			childBox[c], err = readAABB32(r)
			if err != nil {
				return nil, err
			}
		}
		var childIndex [4]int32
		var childCount [4]uint32
		if err := readAll(r, &childIndex, &childCount); err != nil {
			return nil, errors.Wrap(err, "bvhio: read BVH4Node")
		}
		nodes[i] = core.BVH4Node{Box: box, ChildBox: childBox, ChildIndex: childIndex, ChildCount: childCount}
	}
	return &core.BVH4{Nodes: nodes}, nil
}

func encodeWide8(w io.Writer, bvh *core.CWBVH) error {
	for _, n := range bvh.Nodes {
		if err := writeVec3f32(w, n.P); err != nil {
			return err
		}
		if err := writeAll(w, n.E, n.IMask, n.BaseIndexChild, n.BaseIndexTriangle, n.Meta, n.QLo, n.QHi); err != nil {
			return errors.Wrap(err, "bvhio: write CWBVHNode")
		}
	}
	return nil
}

func decodeWide8(r io.Reader, nodeCount int) (*core.CWBVH, error) {
	nodes := make([]core.CWBVHNode, nodeCount)
	for i := range nodes {
		p, err := readVec3f32(r)
		if err != nil {
			return nil, err
		}
		var n core.CWBVHNode
		n.P = p
		if err := readAll(r, &n.E, &n.IMask, &n.BaseIndexChild, &n.BaseIndexTriangle, &n.Meta, &n.QLo, &n.QHi); err != nil {
			return nil, errors.Wrap(err, "bvhio: read CWBVHNode")
		}
		nodes[i] = n
	}
	return &core.CWBVH{Nodes: nodes}, nil
}

func writeAll(w io.Writer, fields ...interface{}) error {
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

func readAll(r io.Reader, fields ...interface{}) error {
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

func writeVec3f32(w io.Writer, v core.Vec3) error {
	return writeAll(w, float32(v.X), float32(v.Y), float32(v.Z))
}

func readVec3f32(r io.Reader) (core.Vec3, error) {
	var x, y, z float32
	if err := readAll(r, &x, &y, &z); err != nil {
		return core.Vec3{}, errors.Wrap(err, "bvhio: read vec3")
	}
	return core.NewVec3(float64(x), float64(y), float64(z)), nil
}

func writeAABB32(w io.Writer, box core.AABB) error {
	if err := writeVec3f32(w, box.Min); err != nil {
		return err
	}
	return writeVec3f32(w, box.Max)
}

func readAABB32(r io.Reader) (core.AABB, error) {
	min, err := readVec3f32(r)
	if err != nil {
		return core.AABB{}, err
	}
	max, err := readVec3f32(r)
	if err != nil {
		return core.AABB{}, err
	}
	return core.NewAABB(min, max), nil
}
