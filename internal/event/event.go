package event

// Op is the one- or two-letter opcode tagging an event record in the JSON
// change feed.
type Op string

const (
	// OpCreated declares a new object of a given kind.
	OpCreated Op = "N"
	// OpDestroyed disposes an object.
	OpDestroyed Op = "D"
	// OpPropertyDeclared declares a property name at a registry index.
	OpPropertyDeclared Op = "P"
	// OpPropertySet changes a property (or map key) value.
	OpPropertySet Op = "C"
	// OpInsert inserts a value into a collection at an index.
	OpInsert Op = "I"
	// OpRemoveAt removes the value at a collection index.
	OpRemoveAt Op = "R"
	// OpSetAt replaces the value at a collection index.
	OpSetAt Op = "S"
	// OpCleared removes every element of a collection.
	OpCleared Op = "CL"
	// OpKeyRemoved removes a map key.
	OpKeyRemoved Op = "K"
)

// Event is the sealed interface of observable mutation records. An Event is
// computed before its mutation is applied and never changes afterwards.
// Creation and disposal are always emitted, listener or not: the change feed
// replay protocol depends on them.
type Event interface {
	// Op returns the feed opcode of the event.
	Op() Op
	event() // sealed
}

// Created records the creation of a tracked observable object.
type Created struct {
	ID   ObjectID
	Kind Kind
}

func (Created) Op() Op { return OpCreated }
func (Created) event() {}

// Destroyed records the disposal of a tracked object.
type Destroyed struct {
	ID ObjectID
}

func (Destroyed) Op() Op { return OpDestroyed }
func (Destroyed) event() {}

// PropertyDeclared records the first use of a property name, binding it to
// its registry index. Indexes are dense, zero-based, and never reused for a
// different name.
type PropertyDeclared struct {
	Prop PropID
	Name string
}

func (PropertyDeclared) Op() Op { return OpPropertyDeclared }
func (PropertyDeclared) event() {}

// PropertySet records a property value change on a plain object, or a key
// write on a map object. Setters suppress the event when the new value
// equals the old one.
type PropertySet struct {
	ID    ObjectID
	Prop  PropID
	Value Value
}

func (PropertySet) Op() Op { return OpPropertySet }
func (PropertySet) event() {}

// Insert records a value inserted into an array or set at Index.
type Insert struct {
	ID    ObjectID
	Index int
	Value Value
}

func (Insert) Op() Op { return OpInsert }
func (Insert) event() {}

// RemoveAt records removal of the element at Index of an array or set.
type RemoveAt struct {
	ID    ObjectID
	Index int
}

func (RemoveAt) Op() Op { return OpRemoveAt }
func (RemoveAt) event() {}

// SetAt records replacement of the element at Index of an array.
type SetAt struct {
	ID    ObjectID
	Index int
	Value Value
}

func (SetAt) Op() Op { return OpSetAt }
func (SetAt) event() {}

// Cleared records removal of every element of a collection.
type Cleared struct {
	ID ObjectID
}

func (Cleared) Op() Op { return OpCleared }
func (Cleared) event() {}

// KeyRemoved records removal of a map key, identified by its registry index.
type KeyRemoved struct {
	ID   ObjectID
	Prop PropID
}

func (KeyRemoved) Op() Op { return OpKeyRemoved }
func (KeyRemoved) event() {}
