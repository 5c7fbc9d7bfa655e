package pkgpipe

import (
	"context"
	"crypto/cipher"
	"encoding"
	"fmt"
	"hash"
	"io"
	"path"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AuthurNero/pkgj/internal/fetch"
	"github.com/AuthurNero/pkgj/internal/pkgcrypto"
	"github.com/AuthurNero/pkgj/internal/stage"
)

const chunkSize = 64 * 1024

// Pipeline drives a single PKG download through head, files, tail,
// stat/rif, and integrity phases, producing a staged content
// directory under TempRoot/<content id>, with explicit context
// cancellation and resumability as first-class return values.
type Pipeline struct {
	opts Options
}

// New constructs a Pipeline from the given options.
func New(opts Options) *Pipeline {
	return &Pipeline{opts: opts}
}

// Result is returned by Run on a fully completed download.
type Result struct {
	ContentID   string
	Root        string
	TotalSize   int64
	ContentType ContentType
}

// session carries every piece of mutable state a single Run call
// threads through its phases. Its snapshot/restore methods are the
// whole of the resume-state format.
type session struct {
	fs     stage.Filesystem
	stream fetch.Stream
	logger *logrus.Logger

	onProgress    func(Progress)
	progressEvery time.Duration
	lastProgress  time.Time
	startedAt     time.Time

	contentID string
	url       string
	root      string

	phase Phase

	streamStarted bool

	head    []byte
	headCap int

	metaOffset  uint32
	metaCount   uint32
	indexCount  uint32
	totalSize   int64
	encOffset   uint64
	encSize     uint64
	contentType ContentType
	indexSize   uint32

	key   []byte
	iv    [16]byte
	block cipher.Block

	sha hash.Hash

	downloadOffset int64
	downloadSize   int64

	itemIndex       int
	itemName        string
	itemPath        string
	encryptedBase   uint64
	encryptedOffset uint64
	decryptedSize   uint64

	itemFile stage.File

	rif    []byte
	digest []byte
}

func (p *Pipeline) newSession(contentID, url string, rif, digest []byte) *session {
	return &session{
		fs:            p.opts.FS,
		stream:        p.opts.NewStream(),
		logger:        p.opts.logger(),
		onProgress:    p.opts.OnProgress,
		progressEvery: p.opts.progressEvery(),
		startedAt:     p.opts.FS.Now(),
		contentID:     contentID,
		url:           url,
		root:          path.Join(p.opts.TempRoot, contentID),
		phase:         PhaseHead,
		head:          make([]byte, 0, p.opts.headBufferSize()),
		headCap:       p.opts.headBufferSize(),
		sha:           pkgcrypto.NewSHA256(),
		rif:           rif,
		digest:        digest,
	}
}

// resumeSession rebuilds a session from a previously returned
// ResumeState, re-deriving the AES block cipher from the saved key
// and rehydrating the SHA-256 state via its BinaryUnmarshaler.
func (p *Pipeline) resumeSession(r *ResumeState) (*session, error) {
	s := &session{
		fs:              p.opts.FS,
		stream:          p.opts.NewStream(),
		logger:          p.opts.logger(),
		onProgress:      p.opts.OnProgress,
		progressEvery:   p.opts.progressEvery(),
		startedAt:       p.opts.FS.Now(),
		contentID:       r.ContentID,
		url:             r.URL,
		root:            r.Root,
		phase:           r.Phase,
		head:            append(make([]byte, 0, p.opts.headBufferSize()), r.Head...),
		headCap:         p.opts.headBufferSize(),
		metaOffset:      r.MetaOffset,
		metaCount:       r.MetaCount,
		indexCount:      r.IndexCount,
		totalSize:       r.TotalSize,
		encOffset:       r.EncOffset,
		encSize:         r.EncSize,
		contentType:     r.ContentType,
		indexSize:       r.IndexSize,
		key:             append([]byte(nil), r.Key...),
		iv:              r.IV,
		downloadOffset:  r.DownloadOffset,
		downloadSize:    r.DownloadSize,
		itemIndex:       r.ItemIndex,
		itemName:        r.ItemName,
		itemPath:        r.ItemPath,
		encryptedBase:   r.EncryptedBase,
		encryptedOffset: r.EncryptedOffset,
		decryptedSize:   r.DecryptedSize,
		rif:             r.RIF,
		digest:          r.Digest,
	}

	if len(r.Key) > 0 {
		block, err := pkgcrypto.NewBlock(s.key)
		if err != nil {
			return nil, formatErr("resume: rebuilding AES block cipher: " + err.Error())
		}
		s.block = block
	}

	sha := pkgcrypto.NewSHA256()
	if len(r.ShaState) > 0 {
		unmarshaler, ok := sha.(encoding.BinaryUnmarshaler)
		if !ok {
			return nil, formatErr("resume: sha256 state is not unmarshalable")
		}
		if err := unmarshaler.UnmarshalBinary(r.ShaState); err != nil {
			return nil, formatErr("resume: restoring sha256 state: " + err.Error())
		}
	}
	s.sha = sha

	// A mid-item resume reopens the partially written item file in
	// append mode so downloadData's writes continue where they left
	// off instead of truncating.
	if s.itemPath != "" && s.fs.Exists(s.itemPath) {
		f, err := s.fs.OpenAppend(s.itemPath)
		if err != nil {
			return nil, ioErr("resume: reopening "+s.itemPath, err)
		}
		s.itemFile = f
	}

	return s, nil
}

// snapshot captures the session into a ResumeState suitable for a
// later Run call to pick up from.
func (s *session) snapshot() (*ResumeState, error) {
	var shaState []byte
	if marshaler, ok := s.sha.(encoding.BinaryMarshaler); ok {
		state, err := marshaler.MarshalBinary()
		if err != nil {
			return nil, ioErr("snapshotting sha256 state", err)
		}
		shaState = state
	}

	return &ResumeState{
		ContentID:       s.contentID,
		URL:             s.url,
		Phase:           s.phase,
		DownloadOffset:  s.downloadOffset,
		DownloadSize:    s.downloadSize,
		TotalSize:       s.totalSize,
		Head:            append([]byte(nil), s.head...),
		MetaOffset:      s.metaOffset,
		MetaCount:       s.metaCount,
		IndexCount:      s.indexCount,
		EncOffset:       s.encOffset,
		EncSize:         s.encSize,
		ContentType:     s.contentType,
		IndexSize:       s.indexSize,
		Key:             append([]byte(nil), s.key...),
		IV:              s.iv,
		ShaState:        shaState,
		ItemIndex:       s.itemIndex,
		EncryptedBase:   s.encryptedBase,
		EncryptedOffset: s.encryptedOffset,
		DecryptedSize:   s.decryptedSize,
		ItemPath:        s.itemPath,
		ItemName:        s.itemName,
		Root:            s.root,
		RIF:             s.rif,
		Digest:          s.digest,
	}, nil
}

func (s *session) closeItemFile() {
	if s.itemFile != nil {
		s.itemFile.Close()
		s.itemFile = nil
	}
}

func (s *session) reportProgress() {
	if s.onProgress == nil {
		return
	}
	now := s.fs.Now()
	if !s.lastProgress.IsZero() && now.Sub(s.lastProgress) < s.progressEvery {
		return
	}
	s.lastProgress = now
	s.onProgress(Progress{
		ContentID:      s.contentID,
		Phase:          s.phase,
		ItemName:       s.itemName,
		DownloadOffset: s.downloadOffset,
		DownloadSize:   s.downloadSize,
		TotalSize:      s.totalSize,
		StartedAt:      s.startedAt,
	})
}

// downloadData is the single read/hash/decrypt/write primitive every
// phase is built from, mirroring Download::download_data. encrypted
// selects whether the bytes just read are decrypted in place with the
// running CTR counter before being written; save selects whether the
// (possibly decrypted) bytes are written to the open item file at all.
func (s *session) downloadData(ctx context.Context, buf []byte, encrypted, save bool) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ErrCancelled
	default:
	}

	s.reportProgress()

	if !s.streamStarted {
		if err := s.stream.Start(ctx, s.url, s.downloadOffset); err != nil {
			return 0, transportErr("starting stream at offset "+fmt.Sprint(s.downloadOffset), err)
		}
		length := s.stream.Length()
		if length < 0 {
			return 0, transportErr("server did not report content length", fetch.ErrLengthUnknown)
		}
		s.downloadSize = length + s.downloadOffset
		s.streamStarted = true
	}

	read, err := s.stream.Read(buf)
	if err == io.EOF {
		return 0, transportErr("connection closed before expected length", fetch.ErrConnectionClosed)
	}
	if err != nil {
		return 0, transportErr("reading stream", err)
	}
	if read == 0 {
		return 0, transportErr("connection closed before expected length", fetch.ErrConnectionClosed)
	}

	s.downloadOffset += int64(read)
	s.sha.Write(buf[:read])

	if encrypted {
		pkgcrypto.CTR(s.block, s.iv, int64(s.encryptedBase+s.encryptedOffset), buf[:read], buf[:read])
		s.encryptedOffset += uint64(read)
	}

	if save {
		write := read
		if encrypted {
			if uint64(write) > s.decryptedSize {
				write = int(s.decryptedSize)
			}
			s.decryptedSize -= uint64(write)
		}
		if s.itemFile == nil {
			return 0, ioErr("no open item file for "+s.itemPath, nil)
		}
		if _, err := s.itemFile.Write(buf[:write]); err != nil {
			return 0, ioErr("writing to "+s.itemPath, err)
		}
	}

	return read, nil
}

// createFile creates s.itemPath, making its parent directories first,
// and stores the handle in s.itemFile.
func (s *session) createFile() error {
	if err := s.fs.MkdirAll(path.Dir(s.itemPath)); err != nil {
		return ioErr("creating folder for "+s.itemPath, err)
	}
	f, err := s.fs.Create(s.itemPath)
	if err != nil {
		return ioErr("creating file "+s.itemPath, err)
	}
	s.itemFile = f
	return nil
}

// drain reads, decrypts and discards n bytes of encrypted stream
// content, keeping the SHA-256 and CTR counters advanced without
// materializing anything on disk. Used for non-extracted items that
// still occupy space in the encrypted stream.
func (s *session) drain(ctx context.Context, n uint64) error {
	buf := make([]byte, chunkSize)
	for n > 0 {
		want := uint64(len(buf))
		if n < want {
			want = n
		}
		read, err := s.downloadData(ctx, buf[:want], true, false)
		if err != nil {
			return err
		}
		if read == 0 {
			return ErrCancelled
		}
		n -= uint64(read)
	}
	return nil
}

// Run executes (or resumes) a single PKG download to completion. On
// success it returns a Result and a nil ResumeState. On cooperative
// cancellation it returns a non-nil ResumeState and ErrCancelled, and
// on a transport-category PipelineError it returns a non-nil
// ResumeState alongside that error; either state can be passed back in
// on the next Run call to continue without re-fetching bytes already
// accounted for. Any other error is terminal and returns a nil
// ResumeState.
func (p *Pipeline) Run(ctx context.Context, contentID, url string, rif, digest []byte, resume *ResumeState) (*Result, *ResumeState, error) {
	var s *session
	var err error

	if resume != nil {
		s, err = p.resumeSession(resume)
		if err != nil {
			return nil, nil, err
		}
		s.logger.WithField("content_id", contentID).Info("resuming pkg download")
	} else {
		s = p.newSession(contentID, url, rif, digest)
		s.logger.WithField("content_id", contentID).Info("starting pkg download")
	}
	defer s.closeItemFile()

	runErr := p.runPhases(ctx, s)
	if runErr == nil {
		return &Result{ContentID: s.contentID, Root: s.root, TotalSize: s.totalSize, ContentType: s.contentType}, nil, nil
	}

	if runErr == ErrCancelled || isTransportErr(runErr) {
		snap, snapErr := s.snapshot()
		if snapErr != nil {
			return nil, nil, snapErr
		}
		if runErr == ErrCancelled {
			return nil, snap, ErrCancelled
		}
		return nil, snap, runErr
	}

	return nil, nil, runErr
}

func isTransportErr(err error) bool {
	pe, ok := err.(*PipelineError)
	return ok && pe.Category == CategoryTransport
}

func (p *Pipeline) runPhases(ctx context.Context, s *session) error {
	if s.phase == PhaseHead {
		if err := s.downloadHead(ctx); err != nil {
			return err
		}
		s.phase = PhaseFiles
	}
	if s.phase == PhaseFiles {
		if err := s.downloadFiles(ctx); err != nil {
			return err
		}
		s.phase = PhaseTail
	}
	if s.phase == PhaseTail {
		if err := s.downloadTail(ctx); err != nil {
			return err
		}
		if s.contentType != ContentTypePSXGame {
			s.phase = PhaseStat
		} else {
			s.phase = PhaseIntegrity
		}
	}
	if s.phase == PhaseStat {
		if err := s.createStat(); err != nil {
			return err
		}
		s.phase = PhaseIntegrity
	}
	if s.phase == PhaseIntegrity {
		if err := s.checkIntegrity(); err != nil {
			return err
		}
		if s.rif != nil {
			s.phase = PhaseRIF
		} else {
			s.phase = PhaseDone
		}
	}
	if s.phase == PhaseRIF {
		if err := s.createRif(); err != nil {
			return err
		}
		s.phase = PhaseDone
	}
	return nil
}
