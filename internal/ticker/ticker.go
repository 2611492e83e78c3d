package ticker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type subscriber struct {
	id int
	fn func()
}

// Ticker 以固定间隔向订阅者广播"该评估了"的信号，不携带任何负载。
// 下一次计时在上一轮回调全部返回后才开始，回调耗时会造成间隔漂移，
// 这是接受的行为，不做补偿。同一实例内回调串行派发，绝不并发。
type Ticker struct {
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	nextID  int
	subs    []subscriber
	stopCh  chan struct{}
	done    chan struct{}
}

// New 创建定时触发器。
func New(interval time.Duration, logger *zap.Logger) *Ticker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ticker{interval: interval, logger: logger}
}

// Start 启动触发循环，重复调用为空操作。
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	t.done = make(chan struct{})
	go t.loop(t.stopCh, t.done)
	t.logger.Info("定时触发器已启动", zap.Duration("interval", t.interval))
}

// Stop 停止触发并释放计时器，重复调用为空操作。
// 正在派发中的一轮回调不会被打断，Stop 返回后不再有新的触发。
func (t *Ticker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopCh)
	done := t.done
	t.mu.Unlock()

	<-done
	t.logger.Info("定时触发器已停止")
}

// OnTick 注册订阅回调，返回用于注销的句柄。回调在触发器自己的
// goroutine 里同步执行，耗时的订阅者会推迟后续触发。
func (t *Ticker) OnTick(fn func()) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	t.subs = append(t.subs, subscriber{id: t.nextID, fn: fn})
	return t.nextID
}

// OffTick 注销指定句柄的订阅，未知句柄为空操作。
func (t *Ticker) OffTick(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, sub := range t.subs {
		if sub.id == id {
			t.subs = append(t.subs[:i], t.subs[i+1:]...)
			return
		}
	}
}

func (t *Ticker) loop(stopCh, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(t.interval)
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-timer.C:
			t.fire()
			timer.Reset(t.interval)
		}
	}
}

// fire 按注册顺序依次调用订阅者。列表先拷贝再派发，
// 回调中注册或注销不影响本轮。
func (t *Ticker) fire() {
	t.mu.Lock()
	subs := make([]subscriber, len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	for _, sub := range subs {
		sub.fn()
	}
}
