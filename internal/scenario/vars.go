package scenario

import (
	"regexp"
	"sync"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Vars is a virtual user's variable scope.
type Vars struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewVars returns an empty scope.
func NewVars() *Vars {
	return &Vars{data: make(map[string]string)}
}

// Set stores a value.
func (v *Vars) Set(key, value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.data[key] = value
}

// Get retrieves a value.
func (v *Vars) Get(key string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.data[key]
	return val, ok
}

// Delete removes a value.
func (v *Vars) Delete(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.data, key)
}

// Resolve replaces {{name}} placeholders, looking names up in the scope
// first and then in globals. Unknown placeholders are left as-is.
func (v *Vars) Resolve(input string, globals map[string]string) string {
	if input == "" {
		return input
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	return placeholderRe.ReplaceAllStringFunc(input, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if val, ok := v.data[name]; ok {
			return val
		}
		if val, ok := globals[name]; ok {
			return val
		}
		return m
	})
}
