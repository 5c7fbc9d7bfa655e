package pkgpipe

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AuthurNero/pkgj/internal/fetch"
	"github.com/AuthurNero/pkgj/internal/stage"
)

// Phase names the stage download is currently in, surfaced to callers
// through Progress and persisted in ResumeState so a resumed run can
// report something sensible before its first callback fires.
type Phase string

const (
	PhaseHead      Phase = "head"
	PhaseFiles     Phase = "files"
	PhaseTail      Phase = "tail"
	PhaseStat      Phase = "stat"
	PhaseIntegrity Phase = "integrity"
	PhaseRIF       Phase = "rif"
	PhaseDone      Phase = "done"
)

// Progress is the periodic snapshot handed to Options.OnProgress.
type Progress struct {
	ContentID      string
	Phase          Phase
	ItemName       string
	DownloadOffset int64
	DownloadSize   int64
	TotalSize      int64
	StartedAt      time.Time
}

// Options configures a Pipeline. NewStream is a factory rather than a
// single Stream so a resumed run can open a fresh HTTP connection at
// the resume offset.
type Options struct {
	FS             stage.Filesystem
	NewStream      func() fetch.Stream
	TempRoot       string
	HeadBufferSize int
	ProgressEvery  time.Duration
	OnProgress     func(Progress)
	Logger         *logrus.Logger
}

func (o Options) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}

func (o Options) headBufferSize() int {
	if o.HeadBufferSize > 0 {
		return o.HeadBufferSize
	}
	return 4 * 1024 * 1024
}

func (o Options) progressEvery() time.Duration {
	if o.ProgressEvery > 0 {
		return o.ProgressEvery
	}
	return 500 * time.Millisecond
}
