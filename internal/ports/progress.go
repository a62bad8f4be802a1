package ports

// ProgressSink receives human-readable progress for one transaction.
// Implementations must not block the caller.
type ProgressSink interface {
	Message(text string)
	Progress(text string, percent int)
	ProgressEnd()
	Title(title string)
}
