package pkgpipe

// ResumeState is everything Run needs to pick a cancelled download
// back up without re-transferring bytes already accounted for. A nil
// ResumeState starts a fresh download from byte 0; a non-nil one
// resumes from exactly where the previous Run call stopped.
//
// Resumability is a first-class return value of Run rather than an
// implicit caller responsibility, since this pipeline is expected to
// survive process restarts and cooperative cancellation mid-transfer.
type ResumeState struct {
	ContentID string
	URL       string

	Phase Phase

	DownloadOffset int64
	DownloadSize   int64
	TotalSize      int64

	// Head is the byte-exact contents of the head region accumulated
	// so far. Once PhaseFiles begins it is complete and immutable.
	Head []byte

	MetaOffset  uint32
	MetaCount   uint32
	IndexCount  uint32
	EncOffset   uint64
	EncSize     uint64
	ContentType ContentType
	IndexSize   uint32

	Key []byte
	IV  [16]byte

	// ShaState is the marshaled incremental SHA-256 state, produced by
	// crypto/sha256's encoding.BinaryMarshaler support, letting a
	// resumed run continue hashing without re-reading bytes already
	// folded in.
	ShaState []byte

	// Per-item cursor, valid only during PhaseFiles.
	ItemIndex       int
	EncryptedBase   uint64
	EncryptedOffset uint64
	DecryptedSize   uint64
	ItemPath        string
	ItemName        string

	Root string

	RIF    []byte
	Digest []byte
}
