package domdef

import (
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/graveldb/gravel/internal/domain"
	"github.com/graveldb/gravel/internal/event"
	"github.com/graveldb/gravel/internal/wire"
)

// Definition is a compiled domain definition: everything a host declares
// about a domain before it starts committing transactions. The object kinds
// are a closed set, so a definition can name them directly.
type Definition struct {
	// Name is the domain name, echoed in snapshots and required to load
	// them back.
	Name string
	// Secret is the optional fixed domain secret. Nil means a random
	// secret per construction; fixing it keeps external reference tokens
	// stable across rebuilds from the same definition.
	Secret *[16]byte
	// TimeKeeping reports whether timed entities fire. Defaults to true.
	TimeKeeping bool
	// LostEvents is the default lost-event policy for new timers.
	LostEvents domain.LostEventPolicy
	// Snapshot is the persistence policy for the domain's client chain.
	Snapshot SnapshotPolicy
	// Roots are the declared root objects, created at materialization.
	Roots []Root
	// Timers are the declared timers, created idle at materialization.
	Timers []TimerDef
}

// SnapshotPolicy declares how often the client chain snapshots the domain.
type SnapshotPolicy struct {
	// Skip is the skip-count policy: -1 manual only, 0 every commit,
	// N > 0 snapshots every N+1 commits.
	Skip int
	// Compression selects the snapshot body encoding.
	Compression wire.Compression
}

// Root declares one root object by label and kind.
type Root struct {
	Label string
	Kind  event.Kind
}

// TimerDef declares one timer by label, schedule anchor, and interval.
type TimerDef struct {
	Label    string
	Anchor   time.Time
	Interval time.Duration
}

// CompileError reports a definition field that failed to compile, with the
// CUE source position when available.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileDefinition parses a CUE value into a Definition. The value is the
// domain struct itself:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`domain: { name: "cars", ... }`)
//	def, err := CompileDefinition(v.LookupPath(cue.ParsePath("domain")))
func CompileDefinition(v cue.Value) (*Definition, error) {
	if err := v.Err(); err != nil {
		return nil, &CompileError{Field: "domain", Message: err.Error(), Pos: v.Pos()}
	}

	def := &Definition{
		TimeKeeping: true,
		LostEvents:  domain.LostNotify,
		Snapshot:    SnapshotPolicy{Skip: 0, Compression: wire.CompressionZlib},
	}

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return nil, &CompileError{Field: "name", Message: "name is required", Pos: v.Pos()}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, &CompileError{Field: "name", Message: err.Error(), Pos: nameVal.Pos()}
	}
	if name == "" {
		return nil, &CompileError{Field: "name", Message: "name must not be empty", Pos: nameVal.Pos()}
	}
	def.Name = name

	if secretVal := v.LookupPath(cue.ParsePath("secret")); secretVal.Exists() {
		s, err := secretVal.String()
		if err != nil {
			return nil, &CompileError{Field: "secret", Message: err.Error(), Pos: secretVal.Pos()}
		}
		raw, err := hex.DecodeString(s)
		if err != nil || len(raw) != 16 {
			return nil, &CompileError{Field: "secret", Message: "secret must be 32 hex characters", Pos: secretVal.Pos()}
		}
		secret := [16]byte(raw)
		def.Secret = &secret
	}

	if tkVal := v.LookupPath(cue.ParsePath("timeKeeping")); tkVal.Exists() {
		tk, err := tkVal.Bool()
		if err != nil {
			return nil, &CompileError{Field: "timeKeeping", Message: err.Error(), Pos: tkVal.Pos()}
		}
		def.TimeKeeping = tk
	}

	if leVal := v.LookupPath(cue.ParsePath("lostEvents")); leVal.Exists() {
		s, err := leVal.String()
		if err != nil {
			return nil, &CompileError{Field: "lostEvents", Message: err.Error(), Pos: leVal.Pos()}
		}
		policy, ok := lostPolicies[s]
		if !ok {
			return nil, &CompileError{Field: "lostEvents", Message: fmt.Sprintf("unknown policy %q (ignore, notify, error)", s), Pos: leVal.Pos()}
		}
		def.LostEvents = policy
	}

	if snapVal := v.LookupPath(cue.ParsePath("snapshot")); snapVal.Exists() {
		if err := compileSnapshot(snapVal, &def.Snapshot); err != nil {
			return nil, err
		}
	}

	roots, err := compileRoots(v.LookupPath(cue.ParsePath("roots")))
	if err != nil {
		return nil, err
	}
	def.Roots = roots

	timers, err := compileTimers(v.LookupPath(cue.ParsePath("timers")))
	if err != nil {
		return nil, err
	}
	def.Timers = timers

	return def, nil
}

var lostPolicies = map[string]domain.LostEventPolicy{
	"ignore": domain.LostIgnore,
	"notify": domain.LostNotify,
	"error":  domain.LostError,
}

var rootKinds = map[string]event.Kind{
	"plain": event.KindPlain,
	"array": event.KindArray,
	"map":   event.KindMap,
	"set":   event.KindSet,
}

func compileSnapshot(v cue.Value, policy *SnapshotPolicy) error {
	if skipVal := v.LookupPath(cue.ParsePath("skip")); skipVal.Exists() {
		skip, err := skipVal.Int64()
		if err != nil {
			return &CompileError{Field: "snapshot.skip", Message: err.Error(), Pos: skipVal.Pos()}
		}
		if skip < -1 {
			return &CompileError{Field: "snapshot.skip", Message: "skip must be -1 (manual), 0 (every commit), or positive", Pos: skipVal.Pos()}
		}
		policy.Skip = int(skip)
	}

	if compVal := v.LookupPath(cue.ParsePath("compression")); compVal.Exists() {
		s, err := compVal.String()
		if err != nil {
			return &CompileError{Field: "snapshot.compression", Message: err.Error(), Pos: compVal.Pos()}
		}
		switch s {
		case "none":
			policy.Compression = wire.CompressionNone
		case "zlib":
			policy.Compression = wire.CompressionZlib
		default:
			return &CompileError{Field: "snapshot.compression", Message: fmt.Sprintf("unknown compression %q (none, zlib)", s), Pos: compVal.Pos()}
		}
	}

	return nil
}

// compileRoots parses the roots struct, label to kind. Labels are sorted so
// materialization creates objects in a deterministic order.
func compileRoots(v cue.Value) ([]Root, error) {
	if !v.Exists() {
		return nil, nil
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{Field: "roots", Message: err.Error(), Pos: v.Pos()}
	}

	var roots []Root
	for iter.Next() {
		label := iter.Label()
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{Field: "roots." + label, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		kind, ok := rootKinds[s]
		if !ok {
			return nil, &CompileError{Field: "roots." + label, Message: fmt.Sprintf("unknown kind %q (plain, array, map, set)", s), Pos: iter.Value().Pos()}
		}
		roots = append(roots, Root{Label: label, Kind: kind})
	}

	sort.Slice(roots, func(i, j int) bool { return roots[i].Label < roots[j].Label })
	return roots, nil
}

func compileTimers(v cue.Value) ([]TimerDef, error) {
	if !v.Exists() {
		return nil, nil
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{Field: "timers", Message: err.Error(), Pos: v.Pos()}
	}

	var timers []TimerDef
	for iter.Next() {
		label := iter.Label()
		td := TimerDef{Label: label}

		anchorVal := iter.Value().LookupPath(cue.ParsePath("anchor"))
		if !anchorVal.Exists() {
			return nil, &CompileError{Field: "timers." + label, Message: "anchor is required", Pos: iter.Value().Pos()}
		}
		s, err := anchorVal.String()
		if err != nil {
			return nil, &CompileError{Field: "timers." + label + ".anchor", Message: err.Error(), Pos: anchorVal.Pos()}
		}
		anchor, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, &CompileError{Field: "timers." + label + ".anchor", Message: "anchor must be RFC 3339", Pos: anchorVal.Pos()}
		}
		td.Anchor = anchor

		intervalVal := iter.Value().LookupPath(cue.ParsePath("interval"))
		if !intervalVal.Exists() {
			return nil, &CompileError{Field: "timers." + label, Message: "interval is required", Pos: iter.Value().Pos()}
		}
		s, err = intervalVal.String()
		if err != nil {
			return nil, &CompileError{Field: "timers." + label + ".interval", Message: err.Error(), Pos: intervalVal.Pos()}
		}
		interval, err := time.ParseDuration(s)
		if err != nil || interval <= 0 {
			return nil, &CompileError{Field: "timers." + label + ".interval", Message: "interval must be a positive duration", Pos: intervalVal.Pos()}
		}
		td.Interval = interval

		timers = append(timers, td)
	}

	sort.Slice(timers, func(i, j int) bool { return timers[i].Label < timers[j].Label })
	return timers, nil
}
