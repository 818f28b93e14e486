package phone

import (
	"fmt"
	"strings"
	"sync"
)

const dialKeys = "0123456789*#+"

// DialPad accumulates the number being typed.
type DialPad struct {
	mu     sync.Mutex
	number string
}

func (d *DialPad) Press(keys string) (string, error) {
	for _, r := range keys {
		if !strings.ContainsRune(dialKeys, r) {
			return d.Number(), fmt.Errorf("invalid dial key %q", r)
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.number += keys
	return d.number, nil
}

func (d *DialPad) Backspace() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.number != "" {
		d.number = d.number[:len(d.number)-1]
	}
	return d.number
}

func (d *DialPad) Number() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.number
}

// DialString keeps only the characters a dial pad can produce, so "+1 555 0199"
// becomes "+15550199".
func DialString(number string) string {
	var b strings.Builder
	for _, r := range number {
		if strings.ContainsRune(dialKeys, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Dial returns the typed number. The pad keeps its contents, like a real keypad.
func (d *DialPad) Dial() (string, error) {
	n := d.Number()
	if n == "" {
		return "", ErrNumberRequired
	}
	return n, nil
}
