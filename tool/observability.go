package tool

// DispatchObservation captures the outcome of one dispatched invocation.
type DispatchObservation struct {
	RequestID  string
	Tool       string
	DurationMS int64
	Success    bool
	ErrorKind  ErrorKind
}

// Observer receives dispatch-level observability events.
type Observer interface {
	ObserveDispatch(observation DispatchObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveDispatch(DispatchObservation) {}

type multiObserver []Observer

func (m multiObserver) ObserveDispatch(observation DispatchObservation) {
	for _, observer := range m {
		observer.ObserveDispatch(observation)
	}
}

// MultiObserver fans one observation stream out to several observers.
func MultiObserver(observers ...Observer) Observer {
	filtered := make(multiObserver, 0, len(observers))
	for _, observer := range observers {
		if observer != nil {
			filtered = append(filtered, observer)
		}
	}
	if len(filtered) == 0 {
		return noopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return filtered
}
