package diagnostics

// Error codes for the escape analysis
const (
	// Errors (E prefix)
	ErrUnresolvedIdentifier     = "E0001"
	ErrUseAfterEscape           = "E0002"
	ErrCircularReference        = "E0003"
	ErrEscapedClosureInvocation = "E0004"
	ErrDuplicateDeclaration     = "E0005"

	// Warnings (W prefix)
	WarnUnknownSignatureEscape = "W0001"
)
