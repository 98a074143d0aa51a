package faults

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Address identifies a destination queue, optionally qualified by the machine hosting it.
// The zero Address means "no destination".
type Address struct {
	Queue   string
	Machine string
}

// ParseAddress parses "queue" or "queue@machine".
func ParseAddress(s string) Address {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}
	}
	queue, machine, _ := strings.Cut(s, "@")
	return Address{Queue: queue, Machine: machine}
}

func (a Address) String() string {
	if a.Machine == "" {
		return a.Queue
	}
	return a.Queue + "@" + a.Machine
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a.Queue == "" && a.Machine == ""
}

var localAddress = sync.OnceValue(func() Address {
	queue := "endpoint"
	if exe, err := os.Executable(); err == nil {
		queue = strings.TrimSuffix(filepath.Base(exe), filepath.Ext(exe))
	}
	machine, err := os.Hostname()
	if err != nil {
		machine = "localhost"
	}
	return Address{Queue: queue, Machine: machine}
})

// LocalAddress returns the process-default address: executable name @ hostname.
func LocalAddress() Address {
	return localAddress()
}
