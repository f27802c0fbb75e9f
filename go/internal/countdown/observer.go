package countdown

// Observer is notified of a Controller's state transitions. Callbacks for one
// controller are never invoked concurrently, including across runs. A callback
// may call Stop, SetRemaining and the accessors, but not Start.
type Observer interface {
	// OnStart fires once when a run begins, including resumed runs.
	OnStart()
	// OnTick fires after each decrement with the new remaining value. It is not
	// called for the terminal transition to zero.
	OnTick(remaining int)
	// OnComplete fires once when a tick takes the countdown to zero. The ticker
	// is already cancelled when it runs.
	OnComplete()
}

// ObserverFuncs adapts plain functions to an Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Start    func()
	Tick     func(remaining int)
	Complete func()
}

func (f ObserverFuncs) OnStart() {
	if f.Start != nil {
		f.Start()
	}
}

func (f ObserverFuncs) OnTick(remaining int) {
	if f.Tick != nil {
		f.Tick(remaining)
	}
}

func (f ObserverFuncs) OnComplete() {
	if f.Complete != nil {
		f.Complete()
	}
}

// Observers fans notifications out to each element in order.
type Observers []Observer

func (o Observers) OnStart() {
	for _, obs := range o {
		obs.OnStart()
	}
}

func (o Observers) OnTick(remaining int) {
	for _, obs := range o {
		obs.OnTick(remaining)
	}
}

func (o Observers) OnComplete() {
	for _, obs := range o {
		obs.OnComplete()
	}
}
