package configyml

import (
	"context"

	"github.com/knadh/koanf/providers/file"
	"go.uber.org/zap"
)

// Watch invalidates the caches and runs the save hooks whenever config.yml
// changes on disk, until ctx is done.  Only meaningful on the OS file
// system.
func (s *Store) Watch(ctx context.Context) error {
	fp := file.Provider(s.path)
	err := fp.Watch(func(_ interface{}, err error) {
		if err != nil {
			zap.S().Errorw("config watch error", "file", s.path, "err", err)
			return
		}
		zap.S().Infow("config changed on disk", "file", s.path)
		s.Invalidate()
		s.runHooks()
	})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = fp.Unwatch()
	}()
	return nil
}
