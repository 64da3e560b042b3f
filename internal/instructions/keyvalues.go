package instructions

// KeyValues is a string mapping that iterates in first-insertion order.
// Setting an existing key replaces its value but keeps its position.
type KeyValues struct {
	keys   []string
	values map[string]string
}

func (kv *KeyValues) Set(key, value string) {
	if kv.values == nil {
		kv.values = map[string]string{}
	}
	if _, ok := kv.values[key]; !ok {
		kv.keys = append(kv.keys, key)
	}
	kv.values[key] = value
}

func (kv *KeyValues) Get(key string) (string, bool) {
	v, ok := kv.values[key]
	return v, ok
}

func (kv *KeyValues) Len() int { return len(kv.keys) }

func (kv *KeyValues) Keys() []string {
	return append([]string(nil), kv.keys...)
}

// Each calls fn for every entry in order.
func (kv *KeyValues) Each(fn func(key, value string)) {
	for _, k := range kv.keys {
		fn(k, kv.values[k])
	}
}

// Map returns a plain copy of the entries.
func (kv *KeyValues) Map() map[string]string {
	res := make(map[string]string, len(kv.keys))
	for k, v := range kv.values {
		res[k] = v
	}

	return res
}
