package bus

import (
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// MockI2C is an in-memory I2C device used when ROBOT_HAT_MOCK_SMBUS is set
// or in tests. It records every write and answers reads from a register
// file seeded by the caller, mirroring the register-array fakes used by
// the original robot_hat i2c mock.
type MockI2C struct {
	mu   sync.Mutex
	regs map[byte]byte
	Txs  [][]byte
}

// NewMockI2C returns a mock device with all registers reading back zero
// until explicitly seeded.
func NewMockI2C() *MockI2C {
	return &MockI2C{regs: make(map[byte]byte)}
}

// Seed sets the value a subsequent single-byte register read returns.
func (m *MockI2C) Seed(reg, value byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[reg] = value
}

func (m *MockI2C) Tx(w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(w))
	copy(cp, w)
	m.Txs = append(m.Txs, cp)

	if len(w) >= 2 {
		m.regs[w[0]] = w[1]
	}
	if len(r) > 0 && len(w) > 0 {
		reg := w[0]
		for i := range r {
			r[i] = m.regs[reg+byte(i)]
		}
	}
	return nil
}

func (m *MockI2C) Close() error { return nil }

// MockGPIO is an in-memory GPIO pin recording every level it was set to.
// It also satisfies GPIOIn for tests that exercise the ultrasonic echo
// timing path: QueueEdge scripts the next WaitForEdge call, letting a
// test drive gpioUltrasonic.Read through a realistic rising/falling
// pulse without real hardware.
type MockGPIO struct {
	mu      sync.Mutex
	name    string
	Levels  []bool
	Current bool

	pull gpio.Pull
	edge gpio.Edge

	edgeQueue []mockEdge
}

type mockEdge struct {
	wait     time.Duration
	level    bool
	occurred bool
}

func NewMockGPIO(name string) *MockGPIO {
	return &MockGPIO{name: name}
}

func (m *MockGPIO) Out(level bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Current = level
	m.Levels = append(m.Levels, level)
	return nil
}

func (m *MockGPIO) Name() string { return m.name }

// In records the requested pull/edge configuration; it never errors.
func (m *MockGPIO) In(pull gpio.Pull, edge gpio.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pull = pull
	m.edge = edge
	return nil
}

func (m *MockGPIO) Read() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Current
}

// QueueEdge scripts the next WaitForEdge call: after sleeping wait, it
// sets Current to level and reports occurred. Queue one entry per
// expected WaitForEdge call (rising edge, then falling edge).
func (m *MockGPIO) QueueEdge(wait time.Duration, level, occurred bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edgeQueue = append(m.edgeQueue, mockEdge{wait: wait, level: level, occurred: occurred})
}

// WaitForEdge pops the next scripted edge and sleeps its wait duration
// before applying it; with nothing queued, it sleeps out the timeout
// and reports no edge, matching a real disconnected echo line.
func (m *MockGPIO) WaitForEdge(timeout time.Duration) bool {
	m.mu.Lock()
	if len(m.edgeQueue) == 0 {
		m.mu.Unlock()
		time.Sleep(timeout)
		return false
	}
	ev := m.edgeQueue[0]
	m.edgeQueue = m.edgeQueue[1:]
	m.mu.Unlock()

	if ev.wait >= timeout {
		time.Sleep(timeout)
		return false
	}
	time.Sleep(ev.wait)
	m.mu.Lock()
	m.Current = ev.level
	m.mu.Unlock()
	return ev.occurred
}
