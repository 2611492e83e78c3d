package execution

// Executor 定义撮合引擎需要满足的接口，调度器与回测都通过它驱动成交。
type Executor interface {
	Execute(action Action, qty float64, ectx Context) (Result, error)
}

var _ Executor = (*Engine)(nil)
