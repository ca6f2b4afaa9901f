package screen

import "github.com/rotisserie/eris"

// Sentinel errors for the screening core. Callers classify with eris.Is.
var (
	// ErrConfiguration marks an invalid run setup, e.g. filter criteria
	// matching zero candidates. The triggering operation leaves no
	// partial state behind.
	ErrConfiguration = eris.New("screen: configuration error")

	// ErrProviderUnavailable marks a fact-provider failure for one
	// candidate. It is counted, never propagated as a batch failure.
	ErrProviderUnavailable = eris.New("screen: fact provider unavailable")

	// ErrPrecedenceViolation marks a stage executed out of order or
	// against a run that is not in running status. Proceeding would
	// corrupt the audit trail, so this is a hard error.
	ErrPrecedenceViolation = eris.New("screen: stage precedence violation")
)
