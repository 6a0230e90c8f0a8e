/*
DESCRIPTION
  exif.go builds the EXIF APP1 segment embedded in compressed blobs. The
  segment holds a little-endian TIFF structure with a primary IFD for the
  device description and an EXIF sub-IFD for the capture parameters.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package jpeg

import (
	"encoding/binary"
	"time"

	"github.com/ausocean/hal/metadata"
)

// JPEG marker codes.
const (
	codeAPP1 = 0xe1 // Application segment 1, holds EXIF.
)

// EXIF header fields.
const (
	exifLabel  = "Exif\x00\x00"
	tiffMagic  = 42
	ifd0Offset = 8
)

// TIFF field types.
const (
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
)

// IFD0 tags.
const (
	tagMake        = 0x010f
	tagModel       = 0x0110
	tagDateTime    = 0x0132
	tagExifPointer = 0x8769
)

// EXIF sub-IFD tags.
const (
	tagExposureTime = 0x829a
	tagISOSpeed     = 0x8827
	tagPixelXDim    = 0xa002
	tagPixelYDim    = 0xa003
)

const (
	exifMake  = "AusOcean"
	exifModel = "Emulated Camera"
)

// ifdEntry is one TIFF directory entry. Value holds the encoded field
// value; values longer than four bytes are relocated to the data area.
type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte
}

// exifAPP1 returns a complete APP1 segment, marker included, with EXIF
// fields derived from the capture result metadata.
func exifAPP1(width, height uint32, result *metadata.Metadata) []byte {
	var exposure int64 = int64(15 * time.Millisecond)
	var iso int32 = 100
	ts := time.Now()
	if result != nil {
		if v, ok := result.Int64(metadata.TagSensorExposureTime); ok {
			exposure = v
		}
		if v, ok := result.Int32(metadata.TagSensorSensitivity); ok {
			iso = v
		}
		if v, ok := result.Int64(metadata.TagSensorTimestamp); ok && v > 0 {
			ts = time.Unix(0, v)
		}
	}

	ifd0 := []ifdEntry{
		{tagMake, typeASCII, uint32(len(exifMake) + 1), append([]byte(exifMake), 0)},
		{tagModel, typeASCII, uint32(len(exifModel) + 1), append([]byte(exifModel), 0)},
		{tagDateTime, typeASCII, 20, append([]byte(ts.Format("2006:01:02 15:04:05")), 0)},
		{tagExifPointer, typeLong, 1, nil}, // Offset filled in below.
	}
	subIFD := []ifdEntry{
		{tagExposureTime, typeRational, 1, rational(exposure, int64(time.Second))},
		{tagISOSpeed, typeShort, 1, shortValue(uint16(iso))},
		{tagPixelXDim, typeLong, 1, longValue(width)},
		{tagPixelYDim, typeLong, 1, longValue(height)},
	}

	subIFDOffset := ifd0Offset + ifdLen(ifd0)
	ifd0[len(ifd0)-1].value = longValue(uint32(subIFDOffset))

	tiff := make([]byte, 8, 8+ifdLen(ifd0)+ifdLen(subIFD))
	tiff[0], tiff[1] = 'I', 'I'
	binary.LittleEndian.PutUint16(tiff[2:], tiffMagic)
	binary.LittleEndian.PutUint32(tiff[4:], ifd0Offset)
	tiff = appendIFD(tiff, ifd0)
	tiff = appendIFD(tiff, subIFD)

	segLen := 2 + len(exifLabel) + len(tiff)
	seg := make([]byte, 0, 2+segLen)
	seg = append(seg, 0xff, codeAPP1)
	seg = append(seg, byte(segLen>>8), byte(segLen))
	seg = append(seg, exifLabel...)
	seg = append(seg, tiff...)
	return seg
}

// ifdLen is the encoded length of an IFD including relocated values.
func ifdLen(entries []ifdEntry) int {
	n := 2 + len(entries)*12 + 4
	for _, e := range entries {
		if len(e.value) > 4 {
			n += len(e.value)
			if len(e.value)%2 != 0 {
				n++
			}
		}
	}
	return n
}

// appendIFD encodes an IFD at the current end of the TIFF structure.
// Long values are placed in a data area directly after the entry table.
func appendIFD(tiff []byte, entries []ifdEntry) []byte {
	base := len(tiff)
	dataOffset := base + 2 + len(entries)*12 + 4

	var count [2]byte
	binary.LittleEndian.PutUint16(count[:], uint16(len(entries)))
	tiff = append(tiff, count[:]...)

	var data []byte
	for _, e := range entries {
		var entry [12]byte
		binary.LittleEndian.PutUint16(entry[0:], e.tag)
		binary.LittleEndian.PutUint16(entry[2:], e.typ)
		binary.LittleEndian.PutUint32(entry[4:], e.count)
		if len(e.value) <= 4 {
			copy(entry[8:], e.value)
		} else {
			binary.LittleEndian.PutUint32(entry[8:], uint32(dataOffset+len(data)))
			data = append(data, e.value...)
			if len(data)%2 != 0 {
				data = append(data, 0)
			}
		}
		tiff = append(tiff, entry[:]...)
	}

	// No further IFDs in the chain.
	tiff = append(tiff, 0, 0, 0, 0)
	return append(tiff, data...)
}

func rational(num, den int64) []byte {
	var v [8]byte
	binary.LittleEndian.PutUint32(v[0:], uint32(num))
	binary.LittleEndian.PutUint32(v[4:], uint32(den))
	return v[:]
}

func shortValue(v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return b[:]
}

func longValue(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}
