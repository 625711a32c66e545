package bus

import (
	"sync"

	"github.com/dep2p/go-vmbus/pkg/interfaces"
	"github.com/dep2p/go-vmbus/pkg/types"
)

type event struct {
	joined bool
	addr   types.Address
}

// dispatcher 按入队顺序向宿主投递成员事件
type dispatcher struct {
	host interfaces.Host

	mu         sync.Mutex
	cond       *sync.Cond
	queue      []event
	closed     bool
	delivering bool // 分发协程正在执行宿主回调
	done       chan struct{}
}

func newDispatcher(host interfaces.Host) *dispatcher {
	d := &dispatcher{host: host, done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// enqueue 入队，调用方持有连接表锁以保证顺序
func (d *dispatcher) enqueue(ev event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, ev)
	d.cond.Signal()
}

func (d *dispatcher) run() {
	defer close(d.done)
	d.mu.Lock()
	for {
		d.delivering = false
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		ev := d.queue[0]
		d.queue[0] = event{}
		d.queue = d.queue[1:]
		d.delivering = true
		d.mu.Unlock()

		d.deliver(ev)
		d.mu.Lock()
	}
}

func (d *dispatcher) deliver(ev event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("宿主事件回调 panic", "peer", ev.addr, "joined", ev.joined, "panic", r)
		}
	}()
	if ev.joined {
		d.host.MemberJoined(ev.addr)
	} else {
		d.host.MemberLeft(ev.addr)
	}
}

// close 投递完已入队的事件后退出
//
// 回调执行期间调用 close（例如宿主在回调中关闭总线）只标记关闭，不等待
// 分发协程退出；剩余事件在回调返回后继续投递。
func (d *dispatcher) close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		d.cond.Signal()
	}
	inCallback := d.delivering
	d.mu.Unlock()
	if inCallback {
		return
	}
	<-d.done
}
