package fetch

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tick-monitor/monitoring"
)

// CircuitBreakerState представляет состояние circuit breaker
type CircuitBreakerState int32

const (
	// StateClosed - нормальная работа, запросы проходят
	StateClosed CircuitBreakerState = iota
	// StateOpen - сработал предохранитель, запросы блокируются
	StateOpen
	// StateHalfOpen - пробное состояние, ограниченные запросы для проверки восстановления
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitBreakerOpen возвращается когда circuit breaker открыт
var ErrCircuitBreakerOpen = errors.New("circuit breaker открыт, запрос заблокирован")

// CircuitBreaker защищает пайплайн от каскадных сбоев недоступного источника.
// После серии ошибок запросы к источнику блокируются на время восстановления,
// затем пропускается пробный запрос.
type CircuitBreaker struct {
	name             string
	failureThreshold int32
	recoveryTimeout  time.Duration

	state       int32 // CircuitBreakerState
	failures    int32
	lastFailure int64 // Unix nano
	mu          sync.Mutex
}

// NewCircuitBreaker создает новый circuit breaker
func NewCircuitBreaker(name string, failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		failureThreshold: int32(failureThreshold),
		recoveryTimeout:  recoveryTimeout,
		state:            int32(StateClosed),
	}
}

// Call выполняет функцию через circuit breaker
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.canExecute() {
		monitoring.GetLogger("fetch").LogCircuitBreakerEvent(cb.name, cb.State().String(), "запрос отклонен")
		return fmt.Errorf("%w (источник %s)", ErrCircuitBreakerOpen, cb.name)
	}

	err := fn()
	if err != nil {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return nil
}

// canExecute проверяет, можно ли выполнить запрос
func (cb *CircuitBreaker) canExecute() bool {
	state := CircuitBreakerState(atomic.LoadInt32(&cb.state))
	switch state {
	case StateClosed:
		return true
	case StateOpen:
		last := time.Unix(0, atomic.LoadInt64(&cb.lastFailure))
		if time.Since(last) >= cb.recoveryTimeout {
			cb.transition(StateOpen, StateHalfOpen, "период восстановления истек")
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	atomic.StoreInt64(&cb.lastFailure, time.Now().UnixNano())
	failures := atomic.AddInt32(&cb.failures, 1)

	state := CircuitBreakerState(atomic.LoadInt32(&cb.state))
	if state == StateHalfOpen {
		cb.transition(StateHalfOpen, StateOpen, "пробный запрос не удался")
		return
	}
	if state == StateClosed && failures >= cb.failureThreshold {
		cb.transition(StateClosed, StateOpen,
			fmt.Sprintf("достигнут порог ошибок: %d", failures))
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := CircuitBreakerState(atomic.LoadInt32(&cb.state))
	if state == StateHalfOpen {
		cb.transition(StateHalfOpen, StateClosed, "источник восстановился")
	}
	atomic.StoreInt32(&cb.failures, 0)
}

// transition переводит breaker из состояния from в to, если он все еще в from.
func (cb *CircuitBreaker) transition(from, to CircuitBreakerState, reason string) {
	if atomic.CompareAndSwapInt32(&cb.state, int32(from), int32(to)) {
		monitoring.GetLogger("fetch").LogCircuitBreakerEvent(cb.name, to.String(), reason)
	}
}

// State возвращает текущее состояние
func (cb *CircuitBreaker) State() CircuitBreakerState {
	return CircuitBreakerState(atomic.LoadInt32(&cb.state))
}

// Failures возвращает текущее число подряд идущих ошибок.
func (cb *CircuitBreaker) Failures() int {
	return int(atomic.LoadInt32(&cb.failures))
}

// Reset принудительно сбрасывает circuit breaker в закрытое состояние
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	atomic.StoreInt32(&cb.state, int32(StateClosed))
	atomic.StoreInt32(&cb.failures, 0)
}

// Настройки breaker по видам источников: веб-поиск и RSS переживают
// больше ошибок, зеркало Telegram и VK банят агрессивнее.
type breakerTuning struct {
	threshold int
	recovery  time.Duration
}

var breakerDefaults = map[string]breakerTuning{
	"rospotrebnadzor-web":  {5, 30 * time.Second},
	"rospotrebnadzor-rss":  {5, 30 * time.Second},
	"rospotrebnadzor-news": {5, 30 * time.Second},
	"telegram-tyumen":      {3, 60 * time.Second},
	"vk-tyumen":            {3, 60 * time.Second},
	"local-news":           {5, 30 * time.Second},
	"tyumen-news":          {5, 30 * time.Second},
	"medical-api":          {3, 120 * time.Second},
	"pdf-bulletin":         {3, 120 * time.Second},
}

var (
	breakersMu sync.Mutex
	breakers   = make(map[string]*CircuitBreaker)
)

// ForSource возвращает (создавая при первом обращении) breaker источника.
func ForSource(tag string) *CircuitBreaker {
	breakersMu.Lock()
	defer breakersMu.Unlock()
	if cb, ok := breakers[tag]; ok {
		return cb
	}
	tuning, ok := breakerDefaults[tag]
	if !ok {
		tuning = breakerTuning{5, 60 * time.Second}
	}
	cb := NewCircuitBreaker(tag, tuning.threshold, tuning.recovery)
	breakers[tag] = cb
	return cb
}
