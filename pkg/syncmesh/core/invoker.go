package core

import "sync"

// Invoker spawns and tracks goroutines, following the teacher's
// core.Invoker / InvokerInstance() pattern; Context.Invoker holds the
// implementation in use, so another one can be set there.
type Invoker interface {
	Spawn(f func())
	Wait()
}

type defaultInvoker struct {
	group sync.WaitGroup
}

var shared = &defaultInvoker{}

// InvokerInstance returns the process-wide default Invoker.
func InvokerInstance() Invoker {
	return shared
}

func (d *defaultInvoker) Spawn(f func()) {
	d.group.Add(1)
	go func() {
		defer d.group.Done()
		f()
	}()
}

func (d *defaultInvoker) Wait() {
	d.group.Wait()
}
