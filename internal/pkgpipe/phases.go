package pkgpipe

import (
	"context"
	"fmt"
	"path"

	"github.com/AuthurNero/pkgj/internal/binfmt"
	"github.com/AuthurNero/pkgj/internal/pkgcrypto"
)

// downloadIntoHead grows s.head to target bytes (capped at s.headCap)
// by pulling more of the stream in through downloadData, which also
// mirrors the bytes into head.bin on disk. It is safe to call
// repeatedly with the same or smaller target; it is the mechanism
// that makes downloadHead itself idempotent across a resumed call.
func (s *session) downloadIntoHead(ctx context.Context, target int) error {
	if target > s.headCap {
		return formatErr("pkg file head is too large")
	}
	for len(s.head) < target {
		old := len(s.head)
		s.head = s.head[:target]
		buf := s.head[old:target]
		read, err := s.downloadData(ctx, buf, false, true)
		if err != nil {
			s.head = s.head[:old]
			return err
		}
		s.head = s.head[:old+read]
	}
	return nil
}

// downloadHead assembles the 256-byte header, its meta table, and the
// file index into s.head, deriving the per-package AES key along the
// way.
func (s *session) downloadHead(ctx context.Context) error {
	s.itemName = "Preparing..."
	s.itemPath = path.Join(s.root, "sce_sys", "package", "head.bin")
	if s.itemFile == nil {
		if err := s.createFile(); err != nil {
			return err
		}
	}

	headSize := HeaderSize + HeaderExtSize
	if err := s.downloadIntoHead(ctx, headSize); err != nil {
		return err
	}

	if !binfmt.ConstantTimeEqual(s.head[offMagic:offMagic+4], magicPKG[:]) ||
		!binfmt.ConstantTimeEqual(s.head[offExtMagic:offExtMagic+4], magicPKGExt[:]) {
		return formatErr("bad pkg header")
	}

	if s.rif != nil {
		if len(s.rif) < 0x10+contentIDSize {
			return formatErr("zrif too short")
		}
		if !binfmt.ConstantTimeEqual(s.rif[0x10:0x10+contentIDSize], s.head[offContentID:offContentID+contentIDSize]) {
			return consistencyErr("zrif content id does not match pkg")
		}
	}

	s.metaOffset = binfmt.Get32BE(s.head[offMetaOffset:])
	s.metaCount = binfmt.Get32BE(s.head[offMetaCount:])
	s.indexCount = binfmt.Get32BE(s.head[offIndexCount:])
	s.totalSize = int64(binfmt.Get64BE(s.head[offTotalSize:]))
	s.encOffset = binfmt.Get64BE(s.head[offEncOffset:])
	s.encSize = binfmt.Get64BE(s.head[offEncSize:])

	if s.encOffset > uint64(s.headCap) {
		return formatErr("pkg file head is too large")
	}

	copy(s.iv[:], s.head[offIV:offIV+ivSize])

	keyType := pkgcrypto.ParseKeyType(s.head[offKeyTypeByte])
	key, err := pkgcrypto.DerivePackageKey(keyType, s.iv)
	if err != nil {
		return formatErr(fmt.Sprintf("invalid key type: %v", err))
	}
	s.key = key
	block, err := pkgcrypto.NewBlock(key)
	if err != nil {
		return ioErr("building AES cipher", err)
	}
	s.block = block

	if err := s.downloadIntoHead(ctx, int(s.encOffset)); err != nil {
		return err
	}

	s.indexSize = 0
	offset := s.metaOffset
	for i := uint32(0); i < s.metaCount; i++ {
		if uint64(offset)+16 >= s.encOffset {
			return formatErr("pkg file too small or corrupt")
		}
		typ := binfmt.Get32BE(s.head[offset:])
		size := binfmt.Get32BE(s.head[offset+4:])

		switch typ {
		case metaTypeContent:
			ct := ContentType(binfmt.Get32BE(s.head[offset+8:]))
			if !ct.supported() {
				return formatErr(fmt.Sprintf("unsupported content type: %d", ct))
			}
			s.contentType = ct
		case metaTypeIndexSize:
			s.indexSize = binfmt.Get32BE(s.head[offset+12:])
		}
		offset += 8 + size
	}

	if err := s.downloadIntoHead(ctx, int(s.encOffset+uint64(s.indexCount)*indexRecordSize)); err != nil {
		return err
	}

	item := make([]byte, indexRecordSize)
	copy(item, s.head[s.encOffset:s.encOffset+indexRecordSize])
	pkgcrypto.CTR(s.block, s.iv, 0, item, item)
	firstItemOffset := binfmt.Get64BE(item[idxItemOffset:])

	if s.indexSize != 0 && firstItemOffset != uint64(s.indexSize) {
		return formatErr(fmt.Sprintf("declared index size mismatch: want %d, got %d", s.indexSize, firstItemOffset))
	}

	if err := s.downloadIntoHead(ctx, int(s.encOffset+firstItemOffset)); err != nil {
		return err
	}

	s.closeItemFile()
	return nil
}

// downloadFiles steps through every file-index record, decrypting
// each item's body and writing it to its destination under s.root.
func (s *session) downloadFiles(ctx context.Context) error {
	defer s.closeItemFile()

	for ; uint32(s.itemIndex) < s.indexCount; s.itemIndex++ {
		// A session resumed part-way through this item keeps its cursor
		// and the item file resumeSession reopened for append.
		resumingItem := s.itemFile != nil && s.encryptedOffset > 0
		index := uint32(s.itemIndex)
		recOff := s.encOffset + uint64(index)*indexRecordSize

		item := make([]byte, indexRecordSize)
		copy(item, s.head[recOff:recOff+indexRecordSize])
		pkgcrypto.CTR(s.block, s.iv, int64(indexRecordSize)*int64(index), item, item)

		nameOffset := binfmt.Get32BE(item[idxNameOffset:])
		nameSize := binfmt.Get32BE(item[idxNameSize:])
		itemOffset := binfmt.Get64BE(item[idxItemOffset:])
		itemSize := binfmt.Get64BE(item[idxItemSize:])
		typ := item[idxType]

		if nameSize > maxItemNameLen || s.encOffset+uint64(nameOffset)+uint64(nameSize) > uint64(s.totalSize) {
			return formatErr("pkg file too small or corrupt")
		}

		nameBuf := make([]byte, nameSize)
		copy(nameBuf, s.head[s.encOffset+uint64(nameOffset):s.encOffset+uint64(nameOffset)+uint64(nameSize)])
		pkgcrypto.CTR(s.block, s.iv, int64(nameOffset), nameBuf, nameBuf)
		s.itemName = string(nameBuf)

		encryptedSize := (itemSize + 15) &^ 15
		if !resumingItem {
			s.decryptedSize = itemSize
			s.encryptedBase = itemOffset
			s.encryptedOffset = 0
		}
		s.itemIndex = int(index)

		s.logger.WithFields(map[string]interface{}{
			"index": index + 1, "count": s.indexCount, "name": s.itemName,
		}).Debug("extracting item")

		if s.contentType == ContentTypePSXGame {
			switch s.itemName {
			case "USRDIR/CONTENT/DOCUMENT.DAT":
				s.itemPath = path.Join(s.root, "DOCUMENT.DAT")
			case "USRDIR/CONTENT/EBOOT.PBP":
				s.itemPath = path.Join(s.root, "EBOOT.PBP")
			default:
				s.closeItemFile()
				if err := s.drain(ctx, encryptedSize-s.encryptedOffset); err != nil {
					return err
				}
				continue
			}
		} else {
			s.itemPath = path.Join(s.root, s.itemName)
		}

		if typ == itemTypeDirectory {
			if err := s.fs.MkdirAll(s.itemPath); err != nil {
				return ioErr("creating directory "+s.itemPath, err)
			}
			continue
		}
		if typ == itemTypeSkip {
			continue
		}

		if !resumingItem {
			if err := s.createFile(); err != nil {
				return err
			}
		}

		if s.encOffset+itemOffset+s.encryptedOffset != uint64(s.downloadOffset) {
			return consistencyErr(fmt.Sprintf(
				"pkg item out of order: expected stream offset %d, at %d",
				s.encOffset+itemOffset+s.encryptedOffset, s.downloadOffset))
		}
		if s.encOffset+itemOffset+itemSize > uint64(s.totalSize) {
			return formatErr("pkg file too small or corrupt")
		}

		buf := make([]byte, chunkSize)
		for s.encryptedOffset != encryptedSize {
			want := encryptedSize - s.encryptedOffset
			if want > uint64(len(buf)) {
				want = uint64(len(buf))
			}
			if _, err := s.downloadData(ctx, buf[:want], true, true); err != nil {
				return err
			}
		}

		s.closeItemFile()
	}

	s.itemIndex = -1
	return nil
}

// downloadTail drains the rest of the encrypted region past the file
// index, then the unencrypted trailer up to the package's declared
// total size, writing tail.bin for everything a PSX disc image
// doesn't fold into its own container.
func (s *session) downloadTail(ctx context.Context) error {
	s.itemName = "Finishing..."
	s.itemPath = path.Join(s.root, "sce_sys", "package", "tail.bin")
	if s.itemFile == nil {
		if err := s.createFile(); err != nil {
			return err
		}
	}
	defer s.closeItemFile()

	buf := make([]byte, chunkSize)

	tailOffset := int64(s.encOffset + s.encSize)
	for s.downloadOffset < tailOffset {
		want := tailOffset - s.downloadOffset
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}
		if _, err := s.downloadData(ctx, buf[:want], false, false); err != nil {
			return err
		}
	}

	save := s.contentType != ContentTypePSXGame
	for s.downloadOffset != s.totalSize {
		want := s.totalSize - s.downloadOffset
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}
		if _, err := s.downloadData(ctx, buf[:want], false, save); err != nil {
			return err
		}
	}

	return nil
}

// checkIntegrity compares the running SHA-256 digest against the
// caller-supplied expected digest (typically from a zRIF or catalog
// entry), deleting head.bin on mismatch so a retried download cannot
// mistake this attempt for a valid resume point.
func (s *session) checkIntegrity() error {
	if s.digest == nil {
		s.logger.Debug("no integrity digest provided, skipping check")
		return nil
	}

	sum := s.sha.Sum(nil)
	if !binfmt.ConstantTimeEqual(sum, s.digest) {
		s.fs.Remove(path.Join(s.root, "sce_sys", "package", "head.bin"))
		return integrityErr("pkg integrity check failed, please redownload")
	}
	return nil
}

// createStat writes the zeroed stat.bin placeholder every non-PSX
// install expects alongside its package metadata.
func (s *session) createStat() error {
	p := path.Join(s.root, "sce_sys", "package", "stat.bin")
	if err := s.fs.WriteFile(p, make([]byte, 768)); err != nil {
		return ioErr("writing "+p, err)
	}
	return nil
}

// createRif writes the license blob to work.bin for the installer to
// pick up.
func (s *session) createRif() error {
	p := path.Join(s.root, "sce_sys", "package", "work.bin")
	if err := s.fs.WriteFile(p, s.rif); err != nil {
		return ioErr("writing "+p, err)
	}
	return nil
}
