package network

// Observer receives streamed results. Any field may be nil.
type Observer[T any] struct {
	Next      func(T)
	Error     func(error)
	Completed func()
}

func (o Observer[T]) next(v T) {
	if o.Next != nil {
		o.Next(v)
	}
}

func (o Observer[T]) error(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

func (o Observer[T]) completed() {
	if o.Completed != nil {
		o.Completed()
	}
}
