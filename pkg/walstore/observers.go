package walstore

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// ReadFailureFunc observes failed snapshot reads, initializations and
// recoveries. initialization is true if no snapshot existed yet.
type ReadFailureFunc func(err error, initialization bool, resource string)

// WriteFailureFunc observes failed snapshot writes. content is the document
// that could not be written, nil if serialization itself failed.
type WriteFailureFunc func(err error, resource string, content []byte)

// Observers holds read and write failure callbacks. A panic inside a callback
// is logged and does not affect the store or the other callbacks.
//
// The zero value is ready to use and may be shared between stores.
type Observers struct {
	mu    sync.RWMutex
	read  []ReadFailureFunc
	write []WriteFailureFunc
}

// OnReadFailure adds fn to the read failure callbacks.
func (o *Observers) OnReadFailure(fn ReadFailureFunc) {
	o.mu.Lock()
	o.read = append(o.read, fn)
	o.mu.Unlock()
}

// OnWriteFailure adds fn to the write failure callbacks.
func (o *Observers) OnWriteFailure(fn WriteFailureFunc) {
	o.mu.Lock()
	o.write = append(o.write, fn)
	o.mu.Unlock()
}

func (o *Observers) notifyRead(log logrus.FieldLogger, err error, initialization bool, resource string) {
	if o == nil {
		return
	}

	o.mu.RLock()
	fns := append([]ReadFailureFunc(nil), o.read...)
	o.mu.RUnlock()

	for _, fn := range fns {
		callSafely(log, "read failure", func() { fn(err, initialization, resource) })
	}
}

func (o *Observers) notifyWrite(log logrus.FieldLogger, err error, resource string, content []byte) {
	if o == nil {
		return
	}

	o.mu.RLock()
	fns := append([]WriteFailureFunc(nil), o.write...)
	o.mu.RUnlock()

	for _, fn := range fns {
		callSafely(log, "write failure", func() { fn(err, resource, content) })
	}
}

func callSafely(log logrus.FieldLogger, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Errorf("%s callback panicked", what)
		}
	}()

	fn()
}
