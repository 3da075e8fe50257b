package buildscan

import (
	"encoding/binary"
	"io"

	"github.com/jimbomcb/wow-minimaps/errs"
	"github.com/jimbomcb/wow-minimaps/resolver"
)

// maidFieldCount is the number of uint32 file-id fields the client's MAID
// chunk records per grid cell (rootADT, obj0ADT, obj1ADT, tex0ADT, lodADT,
// mapTexture, mapTextureN, minimapTexture, in that order). Only
// minimapTexture, the last field, is relevant to this pipeline.
const maidFieldCount = 8
const maidEntrySize = maidFieldCount * 4
const minimapTextureFieldIndex = maidFieldCount - 1

// ParseMAID reads a WDT's chunk stream looking for the "MAID" chunk: a
// sparse grid of (x,y,file_id) entries for x,y in [0,63], and returns one
// MAIDEntry per grid cell whose minimapTexture field is non-zero. Chunk
// tags are stored on-disk reversed (a client convention this parser must
// undo to match the human-readable "MAID" tag).
func ParseMAID(r io.Reader) ([]resolver.MAIDEntry, error) {
	for {
		var rawTag [4]byte
		if _, err := io.ReadFull(r, rawTag[:]); err != nil {
			if err == io.EOF {
				return nil, errs.Fmt("buildscan: MAID chunk not found")
			}
			return nil, errs.WrapFmt(err, "buildscan: reading chunk tag")
		}
		tag := reverseTag(rawTag)

		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, errs.WrapFmt(err, "buildscan: reading chunk size for tag %q", tag)
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, errs.WrapFmt(err, "buildscan: reading chunk payload for tag %q", tag)
		}

		if tag != "MAID" {
			continue
		}
		return parseMAIDPayload(payload)
	}
}

func reverseTag(raw [4]byte) string {
	return string([]byte{raw[3], raw[2], raw[1], raw[0]})
}

func parseMAIDPayload(payload []byte) ([]resolver.MAIDEntry, error) {
	cellCount := len(payload) / maidEntrySize
	if cellCount > 64*64 {
		cellCount = 64 * 64
	}

	var entries []resolver.MAIDEntry
	for i := 0; i < cellCount; i++ {
		off := i * maidEntrySize
		fieldOff := off + minimapTextureFieldIndex*4
		fileID := binary.LittleEndian.Uint32(payload[fieldOff : fieldOff+4])
		if fileID == 0 {
			continue
		}
		entries = append(entries, resolver.MAIDEntry{
			X:      int16(i % 64),
			Y:      int16(i / 64),
			FileID: fileID,
		})
	}
	return entries, nil
}
