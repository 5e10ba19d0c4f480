// Package bundle decodes downloaded translation archives into named byte
// payloads. The decoder walks local file-entry headers sequentially by
// signature instead of trusting a central directory record, which keeps it
// working across backend versions that emit slightly irregular archive
// metadata.
package bundle

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

// Local file-entry layout constants.
const (
	localHeaderSignature = 0x04034b50
	localHeaderSize      = 30

	methodStore   = 0
	methodDeflate = 8

	// Bit 3 of the general purpose flags: sizes live in a trailing data
	// descriptor and the local header carries zeros. Such an entry cannot
	// be walked past without the central directory.
	flagDataDescriptor = 0x0008
)

// Extractor decodes archive bytes into entries matching a resource
// extension. Entries that fail to decode are dropped, not fatal.
type Extractor struct {
	// Extension filters which entries are forwarded (e.g. ".resx").
	Extension string
	// OnLog emits diagnostics for skipped or dropped entries.
	OnLog func(format string, args ...any)
}

func (e *Extractor) log(format string, args ...any) {
	if e.OnLog != nil {
		e.OnLog(format, args...)
	}
}

// Extract walks the archive and returns a mapping of entry name to
// decompressed payload. Directory markers (names ending in "/") and
// entries whose name does not carry the configured extension are skipped.
func (e *Extractor) Extract(data []byte) map[string][]byte {
	entries := make(map[string][]byte)
	wantExt := strings.ToLower(e.Extension)

	offset := 0
	for offset+localHeaderSize <= len(data) {
		if binary.LittleEndian.Uint32(data[offset:]) != localHeaderSignature {
			// First non-entry signature marks the end of the local
			// entries (central directory or trailing records).
			break
		}

		flags := binary.LittleEndian.Uint16(data[offset+6:])
		method := binary.LittleEndian.Uint16(data[offset+8:])
		compressedSize := int(binary.LittleEndian.Uint32(data[offset+18:]))
		nameLen := int(binary.LittleEndian.Uint16(data[offset+26:]))
		extraLen := int(binary.LittleEndian.Uint16(data[offset+28:]))

		nameStart := offset + localHeaderSize
		dataStart := nameStart + nameLen + extraLen
		if dataStart > len(data) {
			e.log("bundle: truncated entry header at offset %d", offset)
			break
		}
		name := string(data[nameStart:dataStart-extraLen])

		if flags&flagDataDescriptor != 0 && compressedSize == 0 {
			e.log("bundle: entry %q uses a data descriptor, cannot walk past it", name)
			break
		}
		if dataStart+compressedSize > len(data) {
			e.log("bundle: entry %q exceeds archive size", name)
			break
		}
		payload := data[dataStart : dataStart+compressedSize]
		offset = dataStart + compressedSize

		if strings.HasSuffix(name, "/") {
			continue
		}
		if strings.ToLower(filepath.Ext(name)) != wantExt {
			continue
		}

		content, err := decompress(method, payload)
		if err != nil {
			e.log("bundle: dropping entry %q: %v", name, err)
			continue
		}
		entries[name] = content
	}

	return entries
}

// decompress inflates an entry payload according to its compression method.
func decompress(method uint16, payload []byte) ([]byte, error) {
	switch method {
	case methodStore:
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	case methodDeflate:
		r := flate.NewReader(bytes.NewReader(payload))
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, &UnsupportedMethodError{Method: method}
	}
}

// UnsupportedMethodError reports a compression method the decoder does not
// handle. Only store and deflate appear in backend bundles.
type UnsupportedMethodError struct {
	Method uint16
}

func (e *UnsupportedMethodError) Error() string {
	return "unsupported compression method " + methodName(e.Method)
}

func methodName(m uint16) string {
	switch m {
	case methodStore:
		return "store"
	case methodDeflate:
		return "deflate"
	default:
		return "#" + strconv.Itoa(int(m))
	}
}
