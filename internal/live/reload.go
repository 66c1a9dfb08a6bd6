package live

import (
	"github.com/erauner12/propsync/internal/entity"
	"github.com/erauner12/propsync/internal/metrics"
)

// Resync schedules a background reload of one collection. It is called by the
// subscription manager after the push channel reconnects and never blocks.
// Types outside the view are ignored.
func (v *View) Resync(t entity.Type) {
	if _, ok := v.loaders[t]; !ok {
		return
	}
	metrics.Resync(t.String())
	v.submit(func() {
		if err := v.reload(t); err != nil {
			v.logger.Warn().Err(err).Str("entityType", t.String()).Msg("Resync failed")
		}
	})
}

// Refetch reloads one collection and waits for the result to be applied.
// On failure the store keeps its previous contents.
func (v *View) Refetch(t entity.Type) error {
	if _, ok := v.loaders[t]; !ok {
		return ErrNotInScope
	}
	var err error
	if !v.submitWait(func() { err = v.reload(t) }) {
		return ErrUnmounted
	}
	return err
}

// reload shares one fetch between concurrent reloads of the same collection
func (v *View) reload(t entity.Type) error {
	loader := v.loaders[t]
	_, err, shared := v.loads.Do(t.String(), func() (any, error) {
		res, err := loader.Fetch(v.ctx)
		if err != nil {
			return nil, err
		}
		return nil, v.do(func() {
			if loader.Commit(res) {
				v.notify()
			}
		})
	})
	if shared {
		v.logger.Debug().Str("entityType", t.String()).Msg("Joined in-flight reload")
	}
	return err
}

func (v *View) submit(task func()) bool {
	v.poolMu.RLock()
	defer v.poolMu.RUnlock()
	if v.poolClosed {
		return false
	}
	v.pool.Submit(task)
	return true
}

func (v *View) submitWait(task func()) bool {
	v.poolMu.RLock()
	defer v.poolMu.RUnlock()
	if v.poolClosed {
		return false
	}
	v.pool.SubmitWait(task)
	return true
}
