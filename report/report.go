// Package report hands DMARC evaluations to the external report generator.
//
// The evaluator never writes reports itself. For every evaluation of a
// domain that asked for reports it submits an Entry to a Sink: aggregate
// entries for rua= accounting and forensic entries for failures selected by
// fo=. Queue decouples submission from storage, and Spool persists entries
// until the generator drains them.
package report

import (
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrQueueFull is returned by Queue.Submit when the buffer is full. The
	// entry is dropped and counted.
	ErrQueueFull = errors.New("report: queue full")

	// ErrClosed is returned when submitting to a closed Queue or Spool.
	ErrClosed = errors.New("report: closed")
)

// Kind is the type of report an entry feeds.
type Kind uint8

const (
	KindAggregate Kind = iota + 1
	KindForensic
)

func (k Kind) String() string {
	switch k {
	case KindAggregate:
		return "aggregate"
	case KindForensic:
		return "forensic"
	}
	return "unknown"
}

// AuthResult is one underlying authentication result of an evaluation.
type AuthResult struct {
	Domain   string
	Selector string
	Result   string
	Aligned  bool
}

// Entry is one DMARC evaluation as seen by the report generator.
type Entry struct {
	// ID is a ULID, so entries sort by creation time.
	ID   string
	Kind Kind
	Time time.Time

	SessionID    string
	FromDomain   string
	RecordDomain string

	// Result, Policy and Disposition are the lower case DMARC keywords.
	Result      string
	Policy      string
	Disposition string
	Sampled     bool

	DKIM []AuthResult
	SPF  *AuthResult

	// Addresses are the rua= or ruf= URIs, depending on Kind.
	Addresses []string

	// Interval is the requested aggregate interval (ri=).
	Interval time.Duration

	// FailureOptions and Formats are the fo= and rf= values.
	FailureOptions []string
	Formats        []string
}

// Sink receives report entries. Submit must not block on I/O; slow sinks
// belong behind a Queue.
type Sink interface {
	Submit(e *Entry) error
}

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new ULID for time t. IDs from one process are strictly
// increasing within the same millisecond.
func NewID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
