package install

import (
	"bytes"
	"encoding/binary"
	"io"
	"strconv"
)

var sfoMagic = [4]byte{0x00, 0x50, 0x53, 0x46}

const (
	sfoUTF8Special uint16 = 0x0004
	sfoUTF8        uint16 = 0x0204
	sfoInteger     uint16 = 0x0404
)

type sfoHeader struct {
	Magic             [4]byte
	Version           int32
	KeyTableOffset    int32
	DataTableOffset   int32
	IndexTableEntries int32
}

type sfoIndexEntry struct {
	KeyOffset      uint16
	ParamFormat    uint16
	ParamLength    uint32
	ParamMaxLength uint32
	DataOffset     uint32
}

// ParseSFO decodes a PARAM.SFO blob into its key/value entries. Only
// the entry the install dispatcher reads (APP_VER) needs to
// round-trip correctly; integer-typed entries are rendered as
// their decimal string form.
func ParseSFO(data []byte) (map[string]string, error) {
	r := bytes.NewReader(data)

	var header sfoHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	if header.Magic != sfoMagic {
		return nil, preconditionErr("param.sfo: bad magic")
	}

	index := make([]sfoIndexEntry, header.IndexTableEntries)
	if err := binary.Read(r, binary.LittleEndian, &index); err != nil {
		return nil, err
	}

	keys := make([]byte, header.DataTableOffset-header.KeyTableOffset)
	if _, err := io.ReadFull(r, keys); err != nil {
		return nil, err
	}

	if len(index) == 0 {
		return map[string]string{}, nil
	}

	last := index[len(index)-1]
	values := make([]byte, last.DataOffset+last.ParamMaxLength)
	if _, err := io.ReadFull(r, values); err != nil {
		return nil, err
	}

	entries := make(map[string]string, len(index))
	for _, entry := range index {
		keyEnd := bytes.IndexByte(keys[entry.KeyOffset:], 0)
		key := string(keys[entry.KeyOffset : int(entry.KeyOffset)+keyEnd])

		switch entry.ParamFormat {
		case sfoUTF8Special:
			entries[key] = string(values[entry.DataOffset : entry.DataOffset+entry.ParamLength])
		case sfoUTF8:
			entries[key] = string(values[entry.DataOffset : entry.DataOffset+entry.ParamLength-1])
		case sfoInteger:
			v := binary.LittleEndian.Uint32(values[entry.DataOffset : entry.DataOffset+entry.ParamLength])
			entries[key] = strconv.Itoa(int(v))
		}
	}

	return entries, nil
}
