// Package circuitbreaker 为远程写入提供熔断保护。
// 连续失败达到阈值后熔断器打开，在超时之前所有调用立即返回 ErrCircuitOpen。
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State 是熔断器的状态。
type State int

const (
	Closed   State = iota // 正常放行
	Open                  // 已熔断，拒绝调用
	HalfOpen              // 超时后试探性放行
)

// String 返回状态名称。
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen 表示熔断器处于打开状态。
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker 是一个按连续失败次数熔断的熔断器。零值不可用，请使用 New 创建。
type Breaker struct {
	failureThreshold uint32
	successThreshold uint32
	timeout          time.Duration
	now              func() time.Time

	mutex     sync.Mutex
	state     State
	failures  uint32
	successes uint32
	openedAt  time.Time
}

// New 创建熔断器。
// failureThreshold: 连续失败多少次后打开。
// successThreshold: 半开状态下连续成功多少次后关闭。
// timeout: 打开状态持续多久后转为半开。
func New(failureThreshold, successThreshold uint32, timeout time.Duration) *Breaker {
	if failureThreshold == 0 {
		failureThreshold = 1
	}
	if successThreshold == 0 {
		successThreshold = 1
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		now:              time.Now,
	}
}

// State 返回当前状态。
func (b *Breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.advance()
	return b.state
}

// Execute 在熔断器允许时执行 req，并根据其结果更新状态。
func (b *Breaker) Execute(req func() error) error {
	b.mutex.Lock()
	b.advance()
	if b.state == Open {
		b.mutex.Unlock()
		return ErrCircuitOpen
	}
	b.mutex.Unlock()

	err := req()

	b.mutex.Lock()
	defer b.mutex.Unlock()
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// advance 在打开超时后转为半开。调用方需持有锁。
func (b *Breaker) advance() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.timeout {
		b.state = HalfOpen
		b.successes = 0
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case HalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = Closed
			b.failures = 0
			b.successes = 0
		}
	case Closed:
		b.failures = 0
	}
}

func (b *Breaker) onFailure() {
	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.trip()
		}
	}
}

func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.failures = 0
	b.successes = 0
}
