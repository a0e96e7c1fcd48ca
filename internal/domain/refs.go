package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/graveldb/gravel/internal/event"
)

// Hash-domain prefix for external reference tokens. The version suffix
// enables future algorithm migration.
const refDomain = "gravel/extref/v1"

// externalRefDigest computes SHA-256 over the hash-domain prefix, a null
// separator, the domain secret, and the object id. The null byte prevents
// prefix/payload boundary ambiguity; the secret keeps tokens unforgeable
// and unguessable across domains.
func externalRefDigest(secret [16]byte, id event.ObjectID) string {
	var payload [4]byte
	binary.BigEndian.PutUint32(payload[:], uint32(id))
	h := sha256.New()
	h.Write([]byte(refDomain))
	h.Write([]byte{0x00})
	h.Write(secret[:])
	h.Write(payload[:])
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ExternalRef returns an opaque token for obj that external collaborators
// can hold across snapshot reloads: the token embeds the object id and a
// secret-keyed digest, so a token minted by one domain never resolves in
// another. Tokens survive Save/Load because the secret does.
func (d *Domain) ExternalRef(obj Object) (string, error) {
	if obj.base().d != d {
		return "", faultf(FaultWrongDomain, "object belongs to a different domain")
	}
	if obj.Destroyed() {
		return "", objectFault(FaultObjectDestroyed, obj.ID(), "object is destroyed")
	}
	return fmt.Sprintf("%d-%s", obj.ID(), externalRefDigest(d.secret, obj.ID())), nil
}

// ResolveExternal resolves a token minted by ExternalRef under a read lock.
// Forged, foreign, and malformed tokens are rejected. A valid token whose
// object has since been destroyed resolves to nil with no error, or, when
// the id has been recycled, to the id's current occupant; holders of
// long-lived tokens must tolerate both.
func (d *Domain) ResolveExternal(token string, timeout time.Duration) (Object, error) {
	idPart, digest, ok := strings.Cut(token, "-")
	if !ok {
		return nil, fmt.Errorf("malformed external reference %q", token)
	}
	raw, err := strconv.ParseInt(idPart, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("malformed external reference %q", token)
	}
	id := event.ObjectID(raw)
	if externalRefDigest(d.secret, id) != digest {
		return nil, fmt.Errorf("external reference %q does not belong to domain %q", token, d.name)
	}
	var obj Object
	if err := d.Read(timeout, func() error {
		obj = d.table.resolve(id)
		return nil
	}); err != nil {
		return nil, err
	}
	return obj, nil
}
