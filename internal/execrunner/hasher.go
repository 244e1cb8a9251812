package execrunner

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// ActionHash is the content-addressed identity of one action invocation.
// Identical inputs, command, env, working directory, and declared outputs
// always produce the same hash; any change to any of those produces a
// different one.
type ActionHash string

// ComputeHash derives a's ActionHash. Every component is written
// length-prefixed, in a fixed order, with maps sorted by key, so the
// digest is stable across processes and machines.
func ComputeHash(a Action) ActionHash {
	h := sha256.New()
	writeField := func(data []byte) {
		n := uint64(len(data))
		var lenBytes [8]byte
		for i := 0; i < 8; i++ {
			lenBytes[7-i] = byte(n >> (8 * i))
		}
		h.Write(lenBytes[:])
		h.Write(data)
	}

	writeField([]byte(a.WorkingDir))
	writeField([]byte(a.Command))

	envKeys := make([]string, 0, len(a.Env))
	for k := range a.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	writeField([]byte{byte(len(envKeys))})
	for _, k := range envKeys {
		writeField([]byte(k))
		writeField([]byte(a.Env[k]))
	}

	outputs := append([]string(nil), a.Outputs ...)
	sort.Strings(outputs)
	writeField([]byte{byte(len(outputs))})
	for _, o := range outputs {
		writeField([]byte(o))
	}

	inputs := append([]Input(nil), a.Inputs ...)
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Path < inputs[j].Path })
	writeField([]byte{byte(len(inputs))})
	for _, in := range inputs {
		writeField([]byte(in.Path))
		writeField(in.Content)
	}

	return ActionHash(hex.EncodeToString(h.Sum(nil)))
}
