package codec

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dep2p/go-vmbus/pkg/interfaces"
	"github.com/dep2p/go-vmbus/pkg/protocol/commands"
)

// Registry 命令类型注册表
//
// 类型名到工厂的映射，并发安全。
type Registry struct {
	mu        sync.RWMutex
	factories map[string]interfaces.CommandFactory
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]interfaces.CommandFactory)}
}

// Register 注册命令类型
//
// 类型名取自工厂创建的零值的 CommandType()。
func (r *Registry) Register(factory interfaces.CommandFactory) error {
	name := factory().CommandType()
	if name == "" {
		return fmt.Errorf("codec: empty command type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister 注册命令类型，失败时 panic（用于包初始化）
func (r *Registry) MustRegister(factories ...interfaces.CommandFactory) *Registry {
	for _, f := range factories {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
	return r
}

// New 按类型名创建命令零值
func (r *Registry) New(name string) (interfaces.Command, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return factory(), nil
}

// Types 返回已注册的类型名（排序）
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry 返回注册了全部内置命令的新注册表
func DefaultRegistry() *Registry {
	return NewRegistry().MustRegister(commands.Factories()...)
}
