package harness

import (
	"fmt"
	"strings"

	"github.com/graveldb/gravel/internal/domain"
	"github.com/graveldb/gravel/internal/feed"
)

// assert checks one assertion against the committed trace and the final graph.
func (r *runState) assert(a Assertion, trace []*feed.Document) error {
	switch a.Type {
	case AssertSerial:
		if got := r.d.Serial(); got != a.Serial {
			return fmt.Errorf("serial is %d, want %d", got, a.Serial)
		}
		return nil

	case AssertObjects:
		if got := r.d.Len(); got != a.Count {
			return fmt.Errorf("%d live objects, want %d", got, a.Count)
		}
		return nil

	case AssertFeedCount:
		if a.Op == "" {
			if got := len(trace); got != a.Count {
				return fmt.Errorf("%d feed documents, want %d", got, a.Count)
			}
			return nil
		}
		var got int
		for _, doc := range trace {
			for _, rec := range doc.E {
				if string(rec.Op) == a.Op {
					got++
				}
			}
		}
		if got != a.Count {
			return fmt.Errorf("%d %q records, want %d", got, a.Op, a.Count)
		}
		return nil

	case AssertFeedOrder:
		var got []string
		for _, doc := range trace {
			for _, rec := range doc.E {
				got = append(got, string(rec.Op))
			}
		}
		if len(got) != len(a.Ops) {
			return fmt.Errorf("feed holds ops %s, want %s",
				strings.Join(got, ","), strings.Join(a.Ops, ","))
		}
		for i := range got {
			if got[i] != a.Ops[i] {
				return fmt.Errorf("feed op %d is %q, want %q", i, got[i], a.Ops[i])
			}
		}
		return nil

	case AssertProperty:
		return r.assertProperty(a)

	case AssertDestroyed:
		id, ok := r.labels[a.Target]
		if !ok {
			return fmt.Errorf("unknown label %q", a.Target)
		}
		var destroyed bool
		err := r.d.Read(stepTimeout, func() error {
			obj := r.d.Object(id)
			destroyed = obj == nil || obj.Destroyed()
			return nil
		})
		if err != nil {
			return err
		}
		if !destroyed {
			return fmt.Errorf("%q is still live", a.Target)
		}
		return nil

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (r *runState) assertProperty(a Assertion) error {
	obj, ok := r.objs[a.Target]
	if !ok {
		return fmt.Errorf("unknown label %q", a.Target)
	}
	want, err := toValue(a.Value, r.labels)
	if err != nil {
		return err
	}
	return r.d.Read(stepTimeout, func() error {
		var got any
		var found bool
		switch o := obj.(type) {
		case *domain.Plain:
			got, found = o.Get(a.Prop)
		case *domain.Map:
			got, found = o.Get(a.Prop)
		default:
			return fmt.Errorf("%q is %s, cannot hold properties", a.Target, obj.Kind())
		}
		if !found {
			return fmt.Errorf("%q has no property %q", a.Target, a.Prop)
		}
		if got != want {
			return fmt.Errorf("%s.%s is %v, want %v", a.Target, a.Prop, got, want)
		}
		return nil
	})
}
