package pkgpipe

// Byte-layout constants for the PKG container. Offsets are into the
// 256-byte head region (header + header extension) that download
// assembles before any file index or item body is read.
const (
	HeaderSize    = 192
	HeaderExtSize = 64
	HeadRegionCap = HeaderSize + HeaderExtSize // grows further for meta/index below

	offMagic       = 0x00
	offExtMagic    = HeaderSize + 0x00
	offMetaOffset  = 0x08
	offMetaCount   = 0x0c
	offIndexCount  = 0x14
	offTotalSize   = 0x18
	offEncOffset   = 0x20
	offEncSize     = 0x28
	offContentID   = 0x30
	offIV          = 0x70
	offKeyTypeByte = 0xe7

	contentIDSize = 0x30
	ivSize        = 16
)

var (
	magicPKG    = [4]byte{0x7f, 0x50, 0x4b, 0x47}
	magicPKGExt = [4]byte{0x7f, 0x65, 0x78, 0x74}
)

// Meta record type tags, read from the variable-length meta table
// that begins at offMetaOffset.
const (
	metaTypeContent   = 2
	metaTypeIndexSize = 13
)

// File-index record layout: 32 bytes per entry, stored from encOffset
// on and AES-CTR encrypted at stream offset 32*i.
const (
	indexRecordSize  = 32
	idxNameOffset    = 0
	idxNameSize      = 4
	idxItemOffset    = 8
	idxItemSize      = 16
	idxType          = 27
)

// Item type tags carried in the file-index record.
const (
	itemTypeDirectory = 4
	itemTypeSkip       = 18
)

// ContentType is the package kind read from the meta table's content
// record (meta type 2).
type ContentType uint32

const (
	ContentTypePSXGame ContentType = 6
	ContentTypeVitaGame ContentType = 21
	ContentTypeVitaAddon ContentType = 22
)

func (c ContentType) supported() bool {
	return c == ContentTypePSXGame || c == ContentTypeVitaGame || c == ContentTypeVitaAddon
}

const maxItemNameLen = 255
