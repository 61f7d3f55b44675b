package types

import (
	"errors"
	"fmt"
)

// Kind classifies an error by who is at fault and how the caller should react.
type Kind uint8

const (
	// KindProtocol: malformed or unacceptable message, wrong group or epoch,
	// unsupported cipher suite or sender.
	KindProtocol Kind = iota + 1
	// KindValidation: the identity provider rejected a credential.
	KindValidation
	// KindStorage: a storage backend failed.
	KindStorage
	// KindCallback: an injected implementation failed unexpectedly.
	KindCallback
	// KindUsage: the caller supplied an inconsistent set of arguments.
	KindUsage
	// KindCodec: bytes could not be decoded.
	KindCodec
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindValidation:
		return "validation"
	case KindStorage:
		return "storage"
	case KindCallback:
		return "callback"
	case KindUsage:
		return "usage"
	case KindCodec:
		return "codec"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by group and client operations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	default:
		return e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels below, so errors.Is(err, ErrProtocol) holds
// for any protocol error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrProtocol   = &Error{Kind: KindProtocol}
	ErrValidation = &Error{Kind: KindValidation}
	ErrStorage    = &Error{Kind: KindStorage}
	ErrCallback   = &Error{Kind: KindCallback}
	ErrUsage      = &Error{Kind: KindUsage}
	ErrCodec      = &Error{Kind: KindCodec}
)

// E wraps err with a kind and operation name. An err that already carries a
// kind keeps it and only gains the outermost Op.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		if typed.Op == "" {
			return &Error{Kind: typed.Kind, Op: op, Err: typed.Err}
		}
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or zero for untyped errors.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return 0
}

// Specific failure causes, wrapped in an Error of the matching kind.
var (
	ErrWrongGroup                     = errors.New("message is for a different group")
	ErrWrongEpoch                     = errors.New("message is for a different epoch")
	ErrUnsupportedSender              = errors.New("external and new-member senders are not supported")
	ErrUnsupportedCipherSuite         = errors.New("unsupported cipher suite")
	ErrUnexpectedMessageFormat        = errors.New("unexpected message format")
	ErrCommitRequired                 = errors.New("own proposals are pending; commit first")
	ErrInconsistentOptionalParameters = errors.New("signer and identity must be given together")
	ErrMissingBasicCredential         = errors.New("credential is not a basic credential")
	ErrNotFound                       = errors.New("not found")
	ErrAlreadyExists                  = errors.New("already exists")
	ErrSessionPoisoned                = errors.New("group session is poisoned; reload it")
	ErrGroupInactive                  = errors.New("group is no longer active")
	ErrKeyPackageExpired              = errors.New("key package expired")
	ErrMissingPSK                     = errors.New("pre-shared key not found")
	ErrDuplicateIdentity              = errors.New("identity already present in group")
	ErrInvalidSignature               = errors.New("invalid signature")
	ErrReplay                         = errors.New("message generation already seen")
	ErrUnsupportedProposal            = errors.New("proposal type has no external representation")
)
