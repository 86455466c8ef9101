package cache

import "go.trai.ch/zerr"

var (
	// ErrContractViolation marks programming errors: mixing contextual and
	// global access, a missing library identity, or writing a descriptor
	// the entry kind does not hold. These panic rather than return.
	ErrContractViolation = zerr.New("cache contract violation")

	// ErrStaleCopy is returned by Commit when the entry changed underneath
	// a writable copy: it was invalidated, replaced, or the same datum was
	// written by someone else.
	ErrStaleCopy = zerr.New("writable copy is stale")

	// ErrPhaseFailed is the cause recorded by Fail when the caller gives none.
	ErrPhaseFailed = zerr.New("phase failed")
)

func violation(msg string, kv ...any) error {
	err := zerr.Wrap(ErrContractViolation, msg)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		err = zerr.With(err, key, kv[i+1])
	}
	return err
}
