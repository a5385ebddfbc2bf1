// Package nifti reads and writes NIfTI-1 volumes (.nii and .nii.gz).
//
// Only the single-file "n+1" layout is supported. The header layout follows
// the official nifti1.h definition; all 348 bytes are preserved across a
// read/write round trip so that provenance fields (description, units,
// qform/sform) survive processing.
package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// NIfTI-1 datatype codes (nifti1.h).
const (
	DTUint8   = 2
	DTInt16   = 4
	DTInt32   = 8
	DTFloat32 = 16
	DTFloat64 = 64
)

const (
	headerSize    = 348
	defaultOffset = 352
)

// Header is the fixed 348-byte NIfTI-1 header.
//
// Field types map from the C definition: int -> int32, short -> int16,
// float -> float32, char[] -> [N]byte.
type Header struct {
	SizeOfHdr          int32
	UnusedDataType     [10]byte
	UnusedDbName       [18]byte
	UnusedExtents      int32
	UnusedSessionError int16
	UnusedRegular      byte
	DimInfo            byte

	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	DataType      int16
	BitPix        int16
	SliceStart    int16
	PixDim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	TOffset       float32
	UnusedGlmax   int32
	UnusedGlmin   int32

	Descrip [80]byte
	AuxFile [24]byte

	QFormCode int16
	SFormCode int16

	QuaternB float32
	QuaternC float32
	QuaternD float32
	QOffsetX float32
	QOffsetY float32
	QOffsetZ float32

	SRowX [4]float32
	SRowY [4]float32
	SRowZ [4]float32

	IntentName [16]byte

	Magic [4]byte
}

// Image is a decoded NIfTI-1 volume. Data is stored as float64 in the file's
// native index order (first axis fastest) with scl_slope/scl_inter already
// applied.
type Image struct {
	Hdr       Header
	ByteOrder binary.ByteOrder
	Data      []float64
}

// Dims returns the grid extents (nx, ny, nz, nt). Missing trailing axes
// report extent 1.
func (h *Header) Dims() (nx, ny, nz, nt int) {
	get := func(axis int) int {
		if int(h.Dim[0]) >= axis && h.Dim[axis] > 0 {
			return int(h.Dim[axis])
		}
		return 1
	}
	return get(1), get(2), get(3), get(4)
}

// NDim returns the number of axes declared in the header.
func (h *Header) NDim() int { return int(h.Dim[0]) }

// PixDims returns the spatial grid spacings (dx, dy, dz).
func (h *Header) PixDims() (dx, dy, dz float64) {
	return float64(h.PixDim[1]), float64(h.PixDim[2]), float64(h.PixDim[3])
}

// Affine returns the 4x4 index-to-world transform as a flat row-major array.
// The sform is preferred when present; otherwise the qform quaternion is
// expanded; a plain pixdim scaling is the fallback.
func (h *Header) Affine() [16]float64 {
	switch {
	case h.SFormCode > 0:
		var m [16]float64
		for c := 0; c < 4; c++ {
			m[c] = float64(h.SRowX[c])
			m[4+c] = float64(h.SRowY[c])
			m[8+c] = float64(h.SRowZ[c])
		}
		m[15] = 1
		return m
	case h.QFormCode > 0:
		return h.qformAffine()
	default:
		dx, dy, dz := h.PixDims()
		return [16]float64{
			dx, 0, 0, 0,
			0, dy, 0, 0,
			0, 0, dz, 0,
			0, 0, 0, 1,
		}
	}
}

// qformAffine expands the qform quaternion representation (nifti1.h method 2).
func (h *Header) qformAffine() [16]float64 {
	b := float64(h.QuaternB)
	c := float64(h.QuaternC)
	d := float64(h.QuaternD)
	a := 1.0 - b*b - c*c - d*d
	if a < 1e-7 {
		// Special case: 180 degree rotation, normalize the vector part.
		n := math.Sqrt(b*b + c*c + d*d)
		b, c, d = b/n, c/n, d/n
		a = 0
	} else {
		a = math.Sqrt(a)
	}

	dx, dy, dz := h.PixDims()
	qfac := 1.0
	if h.PixDim[0] < 0 {
		qfac = -1.0
	}
	dz *= qfac

	return [16]float64{
		(a*a + b*b - c*c - d*d) * dx, 2 * (b*c - a*d) * dy, 2 * (b*d + a*c) * dz, float64(h.QOffsetX),
		2 * (b*c + a*d) * dx, (a*a + c*c - b*b - d*d) * dy, 2 * (c*d - a*b) * dz, float64(h.QOffsetY),
		2 * (b*d - a*c) * dx, 2 * (c*d + a*b) * dy, (a*a + d*d - b*b - c*c) * dz, float64(h.QOffsetZ),
		0, 0, 0, 1,
	}
}

// NewHeader builds a minimal single-file header for a freshly created volume:
// float32 data, identity orientation scaled by the given spacings.
func NewHeader(nx, ny, nz, nt int, dx, dy, dz float64) Header {
	var h Header
	h.SizeOfHdr = headerSize
	ndim := int16(3)
	if nt > 1 {
		ndim = 4
	}
	h.Dim = [8]int16{ndim, int16(nx), int16(ny), int16(nz), int16(nt), 1, 1, 1}
	h.PixDim = [8]float32{1, float32(dx), float32(dy), float32(dz), 1, 1, 1, 1}
	h.DataType = DTFloat32
	h.BitPix = 32
	h.VoxOffset = defaultOffset
	h.SclSlope = 1
	h.SFormCode = 1
	h.SRowX = [4]float32{float32(dx), 0, 0, 0}
	h.SRowY = [4]float32{0, float32(dy), 0, 0}
	h.SRowZ = [4]float32{0, 0, float32(dz), 0}
	h.Magic = [4]byte{'n', '+', '1', 0}
	return h
}

// Read decodes a NIfTI-1 volume from path, transparently inflating .nii.gz.
func Read(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%s: reading header: %w", path, err)
	}

	hdr, order, err := decodeHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	img := &Image{Hdr: hdr, ByteOrder: order}
	if err := img.readData(r); err != nil {
		return nil, fmt.Errorf("%s: reading voxel data: %w", path, err)
	}
	return img, nil
}

// decodeHeader parses the fixed header, detecting byte order from
// sizeof_hdr as nifti1.h prescribes.
func decodeHeader(raw []byte) (Header, binary.ByteOrder, error) {
	var hdr Header
	var order binary.ByteOrder = binary.LittleEndian
	if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
		return hdr, order, err
	}
	if hdr.SizeOfHdr != headerSize {
		order = binary.BigEndian
		if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
			return hdr, order, err
		}
		if hdr.SizeOfHdr != headerSize {
			return hdr, order, fmt.Errorf("not a NIfTI-1 file (sizeof_hdr = %d)", hdr.SizeOfHdr)
		}
	}
	magic := hdr.Magic
	if !(magic[0] == 'n' && (magic[1] == '+' || magic[1] == 'i') && magic[2] == '1' && magic[3] == 0) {
		return hdr, order, fmt.Errorf("bad NIfTI magic %q", magic[:])
	}
	if magic[1] == 'i' {
		return hdr, order, fmt.Errorf("two-file (.hdr/.img) NIfTI layout is not supported")
	}
	if hdr.Dim[0] < 1 || hdr.Dim[0] > 7 {
		return hdr, order, fmt.Errorf("invalid dimension count %d", hdr.Dim[0])
	}
	return hdr, order, nil
}

// readData consumes the voxel payload, converting to float64 and applying
// the scl_slope/scl_inter scaling.
func (img *Image) readData(r io.Reader) error {
	hdr := &img.Hdr

	// Skip header extensions up to vox_offset.
	skip := int64(hdr.VoxOffset) - headerSize
	if skip < 0 {
		return fmt.Errorf("vox_offset %v precedes header end", hdr.VoxOffset)
	}
	if _, err := io.CopyN(io.Discard, r, skip); err != nil {
		return err
	}

	nx, ny, nz, nt := hdr.Dims()
	nvox := nx * ny * nz * nt
	bytesPer := int(hdr.BitPix) / 8
	if bytesPer <= 0 {
		return fmt.Errorf("invalid bitpix %d", hdr.BitPix)
	}

	raw := make([]byte, nvox*bytesPer)
	if _, err := io.ReadFull(r, raw); err != nil {
		return err
	}

	slope := float64(hdr.SclSlope)
	inter := float64(hdr.SclInter)
	if slope == 0 {
		slope, inter = 1, 0
	}

	data := make([]float64, nvox)
	order := img.ByteOrder
	switch hdr.DataType {
	case DTUint8:
		for i := range data {
			data[i] = float64(raw[i])
		}
	case DTInt16:
		for i := range data {
			data[i] = float64(int16(order.Uint16(raw[2*i:])))
		}
	case DTInt32:
		for i := range data {
			data[i] = float64(int32(order.Uint32(raw[4*i:])))
		}
	case DTFloat32:
		for i := range data {
			data[i] = float64(math.Float32frombits(order.Uint32(raw[4*i:])))
		}
	case DTFloat64:
		for i := range data {
			data[i] = math.Float64frombits(order.Uint64(raw[8*i:]))
		}
	default:
		return fmt.Errorf("unsupported datatype code %d", hdr.DataType)
	}
	if slope != 1 || inter != 0 {
		for i := range data {
			data[i] = data[i]*slope + inter
		}
	}

	img.Data = data
	return nil
}

// Write encodes the image to path as a single-file float32 NIfTI-1 volume,
// gzip-compressed when the path ends in .gz. The stored header is normalized
// to the written layout (datatype, bitpix, vox_offset, magic, scaling); all
// other fields pass through untouched.
func (img *Image) Write(path string) error {
	hdr := img.Hdr
	hdr.SizeOfHdr = headerSize
	hdr.DataType = DTFloat32
	hdr.BitPix = 32
	hdr.VoxOffset = defaultOffset
	hdr.SclSlope = 1
	hdr.SclInter = 0
	hdr.Magic = [4]byte{'n', '+', '1', 0}

	nx, ny, nz, nt := hdr.Dims()
	if nvox := nx * ny * nz * nt; nvox != len(img.Data) {
		return fmt.Errorf("%s: header declares %d voxels, image holds %d", path, nvox, len(img.Data))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = f
	var zw *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		zw = gzip.NewWriter(f)
		w = zw
	}
	bw := bufio.NewWriter(w)

	if err := binary.Write(bw, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("%s: writing header: %w", path, err)
	}
	// Extension indicator: four zero bytes, no extensions.
	if _, err := bw.Write(make([]byte, defaultOffset-headerSize)); err != nil {
		return err
	}

	buf := make([]byte, 4)
	for _, v := range img.Data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("%s: writing voxel data: %w", path, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return err
		}
	}
	return f.Close()
}
