package widget

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Dialog is a single upload attempt. It reports to the widget callback at
// most once, whether the upload succeeds, fails, or the dialog is closed.
type Dialog struct {
	ID string

	widget *Widget
	once   sync.Once
	done   chan struct{}

	mu       sync.Mutex
	cancel   context.CancelFunc
	expiry   *time.Timer
	finished bool
	err      error
	result   *Result
}

// Upload starts transferring src in the background. The callback runs when
// the transfer finishes. ctx bounds the transfer; cancelling it aborts the
// dialog.
func (d *Dialog) Upload(ctx context.Context, src Source) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.finished {
		return ErrDialogClosed
	}
	if d.cancel != nil {
		return ErrUploadInProgress
	}

	ctx, cancel := context.WithTimeout(ctx, d.widget.timeout)
	d.cancel = cancel

	go d.run(ctx, src)
	return nil
}

func (d *Dialog) run(ctx context.Context, src Source) {
	defer d.cleanup()

	logger := d.widget.logger.With().Str("dialog", d.ID).Logger()

	src, err := d.widget.resolve(ctx, src)
	if err == nil {
		var info *Info
		info, err = d.widget.host.Upload(ctx, d.widget.cfg, src)
		if err == nil && info == nil {
			err = ErrNoInfo
		}
		if err == nil {
			logger.Info().Str("secure_url", info.SecureURL).Msg("upload finished")
			d.finish(nil, &Result{Event: EventSuccess, Info: *info})
			return
		}
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Info().Err(ctx.Err()).Msg("upload aborted")
		d.finish(nil, &Result{Event: EventAbort})
		return
	}
	logger.Warn().Err(err).Msg("upload failed")
	d.finish(err, nil)
}

// Close dismisses the dialog. A running transfer is cancelled and the
// callback sees a close event instead of its result.
func (d *Dialog) Close() {
	d.finish(nil, &Result{Event: EventClose})
	d.cleanup()
}

// expire closes a dialog that was opened but never given a file. Running
// uploads are bounded by the upload timeout instead.
func (d *Dialog) expire() {
	d.mu.Lock()
	idle := d.cancel == nil && !d.finished
	if idle {
		// refuse uploads from here on
		d.finished = true
	}
	d.mu.Unlock()

	if idle {
		d.widget.logger.Debug().Str("dialog", d.ID).Msg("dialog expired")
		d.finish(nil, &Result{Event: EventClose})
	}
}

func (d *Dialog) cleanup() {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()
}

func (d *Dialog) finish(err error, res *Result) {
	d.once.Do(func() {
		d.mu.Lock()
		d.finished = true
		d.err, d.result = err, res
		if d.expiry != nil {
			d.expiry.Stop()
		}
		d.mu.Unlock()

		d.widget.forget(d.ID)
		d.widget.callback(err, res)
		close(d.done)
	})
}

// Done is closed once the callback has returned.
func (d *Dialog) Done() <-chan struct{} {
	return d.done
}

// Result returns what the dialog reported. It is only meaningful after Done
// is closed.
func (d *Dialog) Result() (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result, d.err
}

// Wait blocks until the dialog reports or ctx ends.
func (d *Dialog) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-d.done:
		return d.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
