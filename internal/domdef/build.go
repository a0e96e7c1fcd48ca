package domdef

import (
	"errors"
	"fmt"
	"time"

	"github.com/graveldb/gravel/internal/domain"
	"github.com/graveldb/gravel/internal/event"
)

// bootstrapTimeout bounds the materialization transaction. The domain is
// freshly constructed, so contention is impossible; this only guards against
// a misbehaving client hook.
const bootstrapTimeout = 5 * time.Second

// Built is a materialized definition: the live domain plus handles to the
// declared roots and timers by label.
type Built struct {
	Domain *domain.Domain
	Roots  map[string]domain.Object
	Timers map[string]*domain.Timer
}

// Materialize constructs a domain from the definition and bootstraps its
// declared graph in a single transaction: one object per root, declared as a
// root, and one idle timer per timer definition, declared as a root so it
// survives collection until the host wires callbacks and starts it.
//
// Definition-derived options are applied first, so explicit opts win.
func Materialize(def *Definition, opts ...domain.Option) (*Built, error) {
	base := []domain.Option{
		domain.WithTimeKeeping(def.TimeKeeping),
		domain.WithLostEventPolicy(def.LostEvents),
	}
	if def.Secret != nil {
		base = append(base, domain.WithSecret(*def.Secret))
	}
	d := domain.New(def.Name, append(base, opts...)...)

	built := &Built{
		Domain: d,
		Roots:  make(map[string]domain.Object, len(def.Roots)),
		Timers: make(map[string]*domain.Timer, len(def.Timers)),
	}

	res := d.Modify(bootstrapTimeout, func(tx *domain.Transaction) error {
		for _, root := range def.Roots {
			obj, err := createByKind(d, tx, root.Kind)
			if err != nil {
				return fmt.Errorf("root %q: %w", root.Label, err)
			}
			if err := d.DeclareRoot(tx, obj); err != nil {
				return fmt.Errorf("root %q: %w", root.Label, err)
			}
			built.Roots[root.Label] = obj
		}

		for _, td := range def.Timers {
			timer, err := d.CreateTimer(tx, td.Anchor, td.Interval)
			if err != nil {
				return fmt.Errorf("timer %q: %w", td.Label, err)
			}
			if err := d.DeclareRoot(tx, timer); err != nil {
				return fmt.Errorf("timer %q: %w", td.Label, err)
			}
			built.Timers[td.Label] = timer
		}

		return nil
	})
	if !res.Success {
		d.Dispose(bootstrapTimeout)
		return nil, fmt.Errorf("materialize %q: %w", def.Name, errors.Join(res.Errors...))
	}

	return built, nil
}

func createByKind(d *domain.Domain, tx *domain.Transaction, kind event.Kind) (domain.Object, error) {
	switch kind {
	case event.KindPlain:
		return d.CreatePlain(tx)
	case event.KindArray:
		return d.CreateArray(tx)
	case event.KindMap:
		return d.CreateMap(tx)
	case event.KindSet:
		return d.CreateSet(tx)
	default:
		return nil, fmt.Errorf("unknown kind %v", kind)
	}
}
