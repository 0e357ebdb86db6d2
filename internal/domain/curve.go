package domain

import "time"

// CurveParams is the opaque packed parameter blob a market stores alongside
// its curve id. Only the bound curve implementation knows the layout; the
// rest of the system treats it as bytes.
type CurveParams []byte

// Clone returns a copy of the blob that the caller may mutate.
func (p CurveParams) Clone() CurveParams {
	if p == nil {
		return nil
	}
	out := make(CurveParams, len(p))
	copy(out, p)
	return out
}

// CurveRegistration is one entry in the curve catalog. Deactivating an entry
// blocks new markets from selecting it but never affects markets already
// bound to it.
type CurveRegistration struct {
	ID           string
	Name         string
	Version      string
	Active       bool
	RegisteredAt time.Time
}
