package policy

import "sync/atomic"

// Source yields the validator to consult for one request. Callers fetch it
// once per request so a concurrent reload never changes rules mid-operation.
type Source interface {
	Validator() *Validator
}

// Validator lets a bare *Validator act as a fixed Source.
func (v *Validator) Validator() *Validator {
	return v
}

// Holder publishes the current validator. Reloads build a new Validator and
// swap it in; validators themselves are never mutated.
type Holder struct {
	current atomic.Pointer[Validator]
}

// NewHolder creates a holder serving v.
func NewHolder(v *Validator) *Holder {
	h := &Holder{}
	h.current.Store(v)
	return h
}

// Validator returns the validator currently in effect.
func (h *Holder) Validator() *Validator {
	return h.current.Load()
}

// Swap installs v and returns the previous validator.
func (h *Holder) Swap(v *Validator) *Validator {
	return h.current.Swap(v)
}
