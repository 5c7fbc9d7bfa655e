package pkgpipe_test

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/AuthurNero/pkgj/internal/fetch"
	"github.com/AuthurNero/pkgj/internal/pkgcrypto"
	"github.com/AuthurNero/pkgj/internal/pkgpipe"
	"github.com/AuthurNero/pkgj/internal/stage"
)

// buildFakePKG assembles a minimal but byte-exact PKG stream: a
// 256-byte head region, a one-record meta table declaring a Vita game
// content type, a single 32-byte file-index record, an encrypted item
// name, and a 16-byte encrypted item body. It uses the PSP master key
// directly (key type 1) so the test doesn't depend on the Vita
// key-ladder derivation to set up its fixture.
func buildFakePKG(t *testing.T, itemName string, itemBody []byte) ([]byte, [16]byte) {
	t.Helper()

	const (
		metaOffset = 256
		encOffset  = 288
		nameOffset = 32 // relative to encOffset
		itemOffset = 40 // relative to encOffset
	)

	nameBytes := []byte(itemName)
	bodyLen := len(itemBody)
	encryptedBodyLen := (bodyLen + 15) &^ 15
	if encryptedBodyLen != bodyLen {
		t.Fatalf("test fixture requires a 16-byte-aligned body, got %d", bodyLen)
	}

	total := encOffset + itemOffset + bodyLen
	buf := make([]byte, total)

	// magic + ext magic
	copy(buf[0:4], []byte{0x7f, 0x50, 0x4b, 0x47})
	copy(buf[192:196], []byte{0x7f, 0x65, 0x78, 0x74})

	binary.BigEndian.PutUint32(buf[8:12], metaOffset)
	binary.BigEndian.PutUint32(buf[12:16], 1) // meta count
	binary.BigEndian.PutUint32(buf[20:24], 1) // index count
	binary.BigEndian.PutUint64(buf[24:32], uint64(total))
	binary.BigEndian.PutUint64(buf[32:40], uint64(encOffset))
	binary.BigEndian.PutUint64(buf[40:48], uint64(itemOffset+bodyLen))

	for i := 0; i < 0x30; i++ {
		buf[0x30+i] = byte(0xa0 + i)
	}

	var iv [16]byte
	for i := range iv {
		iv[i] = byte(i + 1)
	}
	copy(buf[0x70:0x70+16], iv[:])
	buf[0xe7] = byte(pkgcrypto.KeyTypePSP)

	// meta table: one content-type record at metaOffset.
	binary.BigEndian.PutUint32(buf[metaOffset:metaOffset+4], 2)  // type=content
	binary.BigEndian.PutUint32(buf[metaOffset+4:metaOffset+8], 4) // size
	binary.BigEndian.PutUint32(buf[metaOffset+8:metaOffset+12], uint32(pkgpipe.ContentTypeVitaGame))

	key, err := pkgcrypto.DerivePackageKey(pkgcrypto.KeyTypePSP, iv)
	if err != nil {
		t.Fatalf("DerivePackageKey: %v", err)
	}
	block, err := pkgcrypto.NewBlock(key)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}

	record := make([]byte, 32)
	binary.BigEndian.PutUint32(record[0:4], nameOffset)
	binary.BigEndian.PutUint32(record[4:8], uint32(len(nameBytes)))
	binary.BigEndian.PutUint64(record[8:16], uint64(itemOffset))
	binary.BigEndian.PutUint64(record[16:24], uint64(bodyLen))
	record[27] = 0 // regular file

	recordCipher := make([]byte, len(record))
	pkgcrypto.CTR(block, iv, 0, recordCipher, record)
	copy(buf[encOffset:encOffset+32], recordCipher)

	nameCipher := make([]byte, len(nameBytes))
	pkgcrypto.CTR(block, iv, nameOffset, nameCipher, nameBytes)
	copy(buf[encOffset+nameOffset:encOffset+nameOffset+len(nameBytes)], nameCipher)

	bodyCipher := make([]byte, bodyLen)
	pkgcrypto.CTR(block, iv, itemOffset, bodyCipher, itemBody)
	copy(buf[encOffset+itemOffset:encOffset+itemOffset+bodyLen], bodyCipher)

	return buf, iv
}

func newTestOptions(fs stage.Filesystem, streamData []byte, chunkSize int, onProgress func(pkgpipe.Progress)) pkgpipe.Options {
	return pkgpipe.Options{
		FS: fs,
		NewStream: func() fetch.Stream {
			return &fetch.FakeStream{Data: streamData, ChunkSize: chunkSize}
		},
		TempRoot:   "/pkgj-tmp",
		OnProgress: onProgress,
	}
}

func TestPipelineRunExtractsItemAndSidecars(t *testing.T) {
	body := []byte("HELLO PKG TEST!!") // 16 bytes, block-aligned
	streamBytes, _ := buildFakePKG(t, "TEST.BIN", body)

	fakeFS := stage.NewFakeFilesystem()
	opts := newTestOptions(fakeFS, streamBytes, 37, nil)
	p := pkgpipe.New(opts)

	result, resume, err := p.Run(context.Background(), "CONTENTID000000000000000000000001", "http://example.invalid/pkg", nil, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resume != nil {
		t.Fatalf("expected nil resume state on success, got %+v", resume)
	}
	if result.TotalSize != int64(len(streamBytes)) {
		t.Fatalf("TotalSize = %d, want %d", result.TotalSize, len(streamBytes))
	}

	files := fakeFS.Files()

	item, ok := files["/pkgj-tmp/CONTENTID000000000000000000000001/TEST.BIN"]
	if !ok {
		t.Fatalf("item file not written; have %v", keysOf(files))
	}
	if string(item) != string(body) {
		t.Fatalf("item contents = %q, want %q", item, body)
	}

	if _, ok := files["/pkgj-tmp/CONTENTID000000000000000000000001/sce_sys/package/head.bin"]; !ok {
		t.Fatalf("head.bin not written")
	}
	if _, ok := files["/pkgj-tmp/CONTENTID000000000000000000000001/sce_sys/package/tail.bin"]; !ok {
		t.Fatalf("tail.bin not written")
	}
	stat, ok := files["/pkgj-tmp/CONTENTID000000000000000000000001/sce_sys/package/stat.bin"]
	if !ok || len(stat) != 768 {
		t.Fatalf("stat.bin missing or wrong size: ok=%v len=%d", ok, len(stat))
	}
}

func TestPipelineRunWritesRIFWhenProvided(t *testing.T) {
	body := []byte("0123456789ABCDEF")
	streamBytes, _ := buildFakePKG(t, "TEST.BIN", body)

	fakeFS := stage.NewFakeFilesystem()
	opts := newTestOptions(fakeFS, streamBytes, 64, nil)
	p := pkgpipe.New(opts)

	rif := make([]byte, 0x98)
	for i := range rif {
		rif[i] = byte(i)
	}
	copy(rif[0x10:0x10+0x30], streamBytes[0x30:0x30+0x30])

	_, _, err := p.Run(context.Background(), "ANOTHERCONTENTID", "http://example.invalid/pkg", rif, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	files := fakeFS.Files()
	work, ok := files["/pkgj-tmp/ANOTHERCONTENTID/sce_sys/package/work.bin"]
	if !ok {
		t.Fatalf("work.bin not written")
	}
	if string(work) != string(rif) {
		t.Fatalf("work.bin contents mismatch")
	}
}

func TestPipelineRunRejectsMismatchedContentID(t *testing.T) {
	body := []byte("0123456789ABCDEF")
	streamBytes, _ := buildFakePKG(t, "TEST.BIN", body)

	fakeFS := stage.NewFakeFilesystem()
	opts := newTestOptions(fakeFS, streamBytes, 64, nil)
	p := pkgpipe.New(opts)

	rif := make([]byte, 0x98) // all zero, won't match the embedded content id

	_, _, err := p.Run(context.Background(), "BADRIFCONTENT", "http://example.invalid/pkg", rif, nil, nil)
	if err == nil {
		t.Fatalf("expected an error for mismatched zRIF content id")
	}
	var pe *pkgpipe.PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("expected a *PipelineError, got %T: %v", err, err)
	}
	if pe.Category != pkgpipe.CategoryConsistency {
		t.Fatalf("Category = %v, want %v", pe.Category, pkgpipe.CategoryConsistency)
	}
}

func TestPipelineRunRejectsBadMagic(t *testing.T) {
	body := []byte("0123456789ABCDEF")
	streamBytes, _ := buildFakePKG(t, "TEST.BIN", body)
	streamBytes[0] = 0x00 // corrupt the magic

	fakeFS := stage.NewFakeFilesystem()
	opts := newTestOptions(fakeFS, streamBytes, 64, nil)
	p := pkgpipe.New(opts)

	_, _, err := p.Run(context.Background(), "BADMAGIC", "http://example.invalid/pkg", nil, nil, nil)
	if err == nil {
		t.Fatalf("expected an error for bad magic")
	}
	var pe *pkgpipe.PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("expected a *PipelineError, got %T: %v", err, err)
	}
	if pe.Category != pkgpipe.CategoryFormat {
		t.Fatalf("Category = %v, want %v", pe.Category, pkgpipe.CategoryFormat)
	}
}

func TestPipelineRunIntegrityMismatchRemovesHead(t *testing.T) {
	body := []byte("0123456789ABCDEF")
	streamBytes, _ := buildFakePKG(t, "TEST.BIN", body)

	fakeFS := stage.NewFakeFilesystem()
	opts := newTestOptions(fakeFS, streamBytes, 64, nil)
	p := pkgpipe.New(opts)

	wrongDigest := make([]byte, 32)

	_, _, err := p.Run(context.Background(), "DIGESTMISMATCH", "http://example.invalid/pkg", nil, wrongDigest, nil)
	if err == nil {
		t.Fatalf("expected an integrity error")
	}
	var pe *pkgpipe.PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("expected a *PipelineError, got %T: %v", err, err)
	}
	if pe.Category != pkgpipe.CategoryIntegrity {
		t.Fatalf("Category = %v, want %v", pe.Category, pkgpipe.CategoryIntegrity)
	}

	if _, ok := fakeFS.Files()["/pkgj-tmp/DIGESTMISMATCH/sce_sys/package/head.bin"]; ok {
		t.Fatalf("head.bin should have been removed after an integrity failure")
	}
}

func TestPipelineRunCancelThenResumeCompletes(t *testing.T) {
	body := []byte("HELLO PKG TEST!!")
	streamBytes, _ := buildFakePKG(t, "TEST.BIN", body)

	fakeFS := stage.NewFakeFilesystem()
	now := time.Unix(0, 0)
	fakeFS.SetNow(now)

	calls := 0
	ctx, cancel := context.WithCancel(context.Background())
	onProgress := func(pkgpipe.Progress) {
		calls++
		now = now.Add(time.Second)
		fakeFS.SetNow(now)
		if calls == 3 {
			cancel()
		}
	}

	opts1 := newTestOptions(fakeFS, streamBytes, 37, onProgress)
	p1 := pkgpipe.New(opts1)

	result, resume, err := p1.Run(ctx, "RESUMECONTENTID", "http://example.invalid/pkg", nil, nil, nil)
	if !errors.Is(err, pkgpipe.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result on cancellation")
	}
	if resume == nil {
		t.Fatalf("expected a non-nil resume state on cancellation")
	}
	if resume.Phase != pkgpipe.PhaseHead {
		t.Fatalf("Phase = %v, want PhaseHead", resume.Phase)
	}
	if resume.DownloadOffset == 0 {
		t.Fatalf("expected partial progress before cancellation")
	}

	opts2 := newTestOptions(fakeFS, streamBytes, 37, nil)
	p2 := pkgpipe.New(opts2)

	result2, resume2, err2 := p2.Run(context.Background(), "RESUMECONTENTID", "http://example.invalid/pkg", nil, nil, resume)
	if err2 != nil {
		t.Fatalf("resumed Run: %v", err2)
	}
	if resume2 != nil {
		t.Fatalf("expected nil resume state after a completed resume, got %+v", resume2)
	}
	if result2.TotalSize != int64(len(streamBytes)) {
		t.Fatalf("TotalSize = %d, want %d", result2.TotalSize, len(streamBytes))
	}

	item, ok := fakeFS.Files()["/pkgj-tmp/RESUMECONTENTID/TEST.BIN"]
	if !ok || string(item) != string(body) {
		t.Fatalf("resumed download did not produce the expected item file")
	}
}

func keysOf(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
