package di

import (
	"time"

	"github.com/loomdi/loom/internal/logger"
)

// Observer receives resolution events. Observer failures are recovered
// and logged; they never affect the resolution that triggered them.
type Observer interface {
	OnResolve(key Key, elapsed time.Duration)
	OnCacheHit(key Key)
}

// notifyResolve fans an OnResolve event out to every observer, isolating
// panics per observer.
func notifyResolve(observers []Observer, log logger.Logger, key Key, elapsed time.Duration) {
	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Warn("observer panicked in OnResolve",
						logger.String("key", key.String()),
						logger.Any("panic", r),
					)
				}
			}()
			o.OnResolve(key, elapsed)
		}()
	}
}

// notifyCacheHit fans an OnCacheHit event out to every observer.
func notifyCacheHit(observers []Observer, log logger.Logger, key Key) {
	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Warn("observer panicked in OnCacheHit",
						logger.String("key", key.String()),
						logger.Any("panic", r),
					)
				}
			}()
			o.OnCacheHit(key)
		}()
	}
}
