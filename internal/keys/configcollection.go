package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"buildgraph/internal/buildvars"
	"buildgraph/internal/key"
)

// FragmentSet names the configuration fragments requested for one
// ConfigurationCollection key, as a sorted, comma-joined string so the
// payload stays comparable (usable as a map key) without needing a slice
// payload type.
type FragmentSet string

// NewFragmentSet joins fragments into a FragmentSet, sorted for a stable
// identity regardless of caller-supplied order.
func NewFragmentSet(fragments ...string) FragmentSet {
	sorted := append([]string(nil), fragments ...)
	sort.Strings(sorted)
	return FragmentSet(strings.Join(sorted, ","))
}

// Fragments splits a FragmentSet back into its component names.
func (f FragmentSet) Fragments() []string {
	if f == "" {
		return nil
	}
	return strings.Split(string(f), ",")
}

// Configuration is the Value payload for a ConfigurationCollection key.
type Configuration struct {
	Digest string
	Fragments []string
	Mode string
}

// ConfigurationCollectionKey returns the ConfigurationCollection key for
// the given fragment set.
func ConfigurationCollectionKey(fragments FragmentSet) key.Key {
	return key.New(key.ConfigurationCollection, fragments)
}

// NewConfigurationCollectionFunc returns the Func for the
// ConfigurationCollection family: combines the requested fragment set with
// the current BuildOptions build variable into one Configuration, digested
// for use as a ConfiguredTarget configuration tag.
func NewConfigurationCollectionFunc() key.Func {
	return func(k key.Key, env key.Environment) key.Outcome {
		fragments, ok := k.Payload().(FragmentSet)
		if !ok {
			return key.Fail(fmt.Errorf("keys: ConfigurationCollection key has unexpected payload %v", k.Payload()))
		}

		optsKey := buildvars.Key(buildvars.BuildOptions)
		optsVal, ok := env.Get(optsKey)
		if !ok {
			return key.Missing([]key.Key{optsKey})
		}
		opts, _ := optsVal.Data().(buildvars.BuildOptionsValue)

		h := sha256.New()
		fmt.Fprintf(h, "%s|%s", fragments, opts.CompilationMode)
		digest := hex.EncodeToString(h.Sum(nil))[:16]

		return key.Done(key.NewValue(key.ConfigurationCollection, Configuration{
			Digest: digest,
			Fragments: fragments.Fragments(),
			Mode: opts.CompilationMode,
		}))
	}
}
