// Package rif implements the zRIF text encoding: a raw RIF license
// blob, zlib-compressed against a fixed shared dictionary and
// base64-encoded, used to pass a license around as plain text (pasted
// into a download page, stored in a bookmark) instead of shipping the
// binary file.
package rif

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"errors"
	"io"
)

const rifDictBase64 = `
eNpjYBgFo2AU0AsYAIElGt8MRJiDCAsw3xhEmIAIU4N4AwNdRxcXZ3+/EJCAkW
6Ac7C7ARwYgviuQAaIdoPSzlDaBUo7QmknIM3ACIZM78+u7kx3VWYEAGJ9HV0=
`

var rifDict = expandZlibDict()

func expandZlibDict() []byte {
	compressed, err := base64.StdEncoding.DecodeString(rifDictBase64)
	if err != nil {
		panic(err)
	}

	z, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		panic(err)
	}
	defer z.Close()

	dict, err := io.ReadAll(z)
	if err != nil {
		panic(err)
	}
	return dict
}

// validSizes are the RIF license lengths the pipeline understands:
// 512 bytes for Vita application/patch/DLC licenses, 1024 for PSM.
var validSizes = map[int]bool{512: true, 1024: true}

// Decode converts a zRIF string back into the raw RIF bytes it
// encodes.
func Decode(zrif string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(zrif)
	if err != nil {
		return nil, err
	}

	z, err := zlib.NewReaderDict(bytes.NewReader(data), rifDict)
	if err != nil {
		return nil, err
	}
	defer z.Close()

	lic, err := io.ReadAll(z)
	if err != nil {
		return nil, err
	}
	if !validSizes[len(lic)] {
		return nil, errors.New("rif: decoded license has an unexpected length")
	}
	return lic, nil
}

// Encode compresses a raw RIF license against the shared dictionary
// and base64-encodes the result into a zRIF string. The zlib header
// bytes are patched afterward to match what every other zRIF tool
// emits, since Go's zlib writer doesn't expose FDICT/FLEVEL controls
// directly.
func Encode(license []byte) (string, error) {
	var buf bytes.Buffer
	z, err := zlib.NewWriterLevelDict(&buf, zlib.BestCompression, rifDict)
	if err != nil {
		return "", err
	}
	if _, err := z.Write(license); err != nil {
		return "", err
	}
	if err := z.Close(); err != nil {
		return "", err
	}

	out := buf.Bytes()
	out[0] = 8       // CM = DEFLATE
	out[0] |= 2 << 4 // CINFO = 2 (1024-byte window)
	out[1] = 3 << 6  // FLEVEL = 3 (max compression)
	out[1] |= 1 << 5 // FDICT = 1 (dictionary present)
	out[1] += uint8(31 - (uint16(out[0])<<8+uint16(out[1]))%31)

	return base64.StdEncoding.EncodeToString(out), nil
}
