package ui

import (
	"fmt"
	"sync"
)

// MockPrinter records all messages. It is meant to be used in tests.
type MockPrinter struct {
	m      sync.Mutex
	Errors []string
	Output []string
}

var _ Printer = (*MockPrinter)(nil)

func (p *MockPrinter) add(dst *[]string, msg string, args ...interface{}) {
	p.m.Lock()
	defer p.m.Unlock()
	*dst = append(*dst, fmt.Sprintf(msg, args...))
}

func (p *MockPrinter) E(msg string, args ...interface{})  { p.add(&p.Errors, msg, args...) }
func (p *MockPrinter) P(msg string, args ...interface{})  { p.add(&p.Output, msg, args...) }
func (p *MockPrinter) V(msg string, args ...interface{})  { p.add(&p.Output, msg, args...) }
func (p *MockPrinter) VV(msg string, args ...interface{}) { p.add(&p.Output, msg, args...) }
