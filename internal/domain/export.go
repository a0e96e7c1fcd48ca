package domain

import (
	"time"

	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/feed"
)

// Export renders the whole observable graph as one feed document, as if a
// single transaction had declared every property and rebuilt every object.
// The output is deterministic; two domains with the same observable state
// export byte-identical JSON, which is how snapshot round-trips are
// verified.
func (d *Domain) Export(timeout time.Duration) ([]byte, error) {
	var doc *feed.Document
	if err := d.Read(timeout, func() error {
		built, err := feed.Encode(uint64(d.serial), d.exportEvents())
		doc = built
		return err
	}); err != nil {
		return nil, err
	}
	return doc.Marshal()
}

// exportEvents synthesizes the event list reconstructing the observable
// graph: property declarations in index order, then per object (in table
// order) its creation and contents. Internal objects and timed entities
// carry no feed shape and are absent.
func (d *Domain) exportEvents() []event.Event {
	var out []event.Event
	for i, name := range d.registry.Names() {
		out = append(out, event.PropertyDeclared{Prop: event.PropID(i), Name: name})
	}
	for id, obj := range d.table.slots {
		if obj == nil || obj.Capability() != CapObservable {
			continue
		}
		oid := event.ObjectID(id)
		out = append(out, event.Created{ID: oid, Kind: obj.Kind()})
		switch o := obj.(type) {
		case *Plain:
			for _, prop := range sortedProps(o.props) {
				out = append(out, event.PropertySet{ID: oid, Prop: prop, Value: o.props[prop]})
			}
		case *Array:
			for i, v := range o.elems {
				out = append(out, event.Insert{ID: oid, Index: i, Value: v})
			}
		case *Map:
			for _, prop := range sortedProps(o.entries) {
				out = append(out, event.PropertySet{ID: oid, Prop: prop, Value: o.entries[prop]})
			}
		case *Set:
			for i, v := range o.elems {
				out = append(out, event.Insert{ID: oid, Index: i, Value: v})
			}
		}
	}
	return out
}
