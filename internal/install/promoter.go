package install

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Promoter abstracts the host firmware's application-promotion
// syscall (scePromoterUtilityPromotePkgWithRif on real hardware),
// which registers a staged package as an installed application. It
// exists as an interface because that syscall has no meaning outside
// PS Vita firmware; anything running this module off-device needs a
// substitute.
type Promoter interface {
	Promote(ctx context.Context, stagedPath string) error
}

// LoggingPromoter is a host-side stand-in for the real promoter: it
// logs the call it would have made and succeeds unconditionally. Any
// environment with access to the real syscall should provide its own
// Promoter instead.
type LoggingPromoter struct {
	Logger *logrus.Logger
}

func (p *LoggingPromoter) Promote(ctx context.Context, stagedPath string) error {
	logger := p.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithField("path", stagedPath).Info("promoting package (no-op outside PS Vita firmware)")
	return nil
}
