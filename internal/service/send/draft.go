package send

import "sync"

// Draft holds the text the user is composing.
type Draft struct {
	mu   sync.Mutex
	text string
}

// Set replaces the draft text.
func (d *Draft) Set(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
}

// Text returns the current draft text.
func (d *Draft) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// take clears the draft and returns what it held.
func (d *Draft) take() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	text := d.text
	d.text = ""
	return text
}

// takeIf clears the draft when it is empty or holds exactly text, and
// reports whether it did. A different pending draft is left alone.
func (d *Draft) takeIf(text string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.text != "" && d.text != text {
		return false
	}
	d.text = ""
	return true
}

// restore puts text back after a failed submission. Anything typed while the
// submission was in flight is kept after the restored text.
func (d *Draft) restore(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.text == "" {
		d.text = text
		return
	}
	d.text = text + d.text
}
