package rag

// Observer receives retrieval lifecycle notifications. Implementations
// must be cheap; the retriever calls them inline. The default is a no-op
// so the core never branches on whether tracing is installed.
type Observer interface {
	RetrievalStarted(question string)
	RetrievalFinished(question string, passages int, err error)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) RetrievalStarted(string)              {}
func (NopObserver) RetrievalFinished(string, int, error) {}
