package domainerrors

import "sort"

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Collector accumulates field errors across several checks.
type Collector struct {
	fields map[string][]string
}

// Add records msg under field.
func (c *Collector) Add(field, msg string) {
	if c.fields == nil {
		c.fields = make(map[string][]string)
	}
	c.fields[field] = append(c.fields[field], msg)
}

// Merge folds the fields of err into the collector.
func (c *Collector) Merge(err error) {
	for field, msgs := range FieldErrors(err) {
		for _, msg := range msgs {
			c.Add(field, msg)
		}
	}
}

// Err returns a validation error for the collected fields, or nil.
func (c *Collector) Err() error {
	return Validation(c.fields)
}
