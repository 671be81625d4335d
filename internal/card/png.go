package card

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
)

const pngSignatureLen = 8

// charaKeyword is the tEXt keyword character-card tools embed their payload
// under.
const charaKeyword = "chara"

// ExtractCharaData walks the PNG chunk stream of raw and returns the
// base64-decoded value of the first tEXt chunk keyed "chara". The scan stops
// at the first IEND chunk or at end of stream; both yield ErrNoEmbeddedData.
//
// Chunk CRCs are intentionally not verified: ingestion trusts the embedded
// checksum and treats corruption as a pass-through concern. Truncated
// trailing data ends the scan without error.
func ExtractCharaData(raw []byte) ([]byte, error) {
	off := pngSignatureLen
	for {
		// 4-byte big-endian length; a short read ends the scan.
		if off+4 > len(raw) {
			return nil, ErrNoEmbeddedData
		}
		length := int(binary.BigEndian.Uint32(raw[off : off+4]))
		off += 4

		if off+4 > len(raw) {
			return nil, ErrNoEmbeddedData
		}
		typ := string(raw[off : off+4])
		off += 4

		if off+length > len(raw) {
			return nil, ErrNoEmbeddedData
		}
		data := raw[off : off+length]
		off += length + 4 // payload + CRC (unverified)

		if typ == "tEXt" {
			if keyword, value, found := bytes.Cut(data, []byte{0}); found && string(keyword) == charaKeyword {
				decoded, err := base64.StdEncoding.DecodeString(string(value))
				if err != nil {
					return nil, ErrUnreadable
				}
				return decoded, nil
			}
		}
		if typ == "IEND" {
			return nil, ErrNoEmbeddedData
		}
	}
}
