package content

// Transformer modifies content, returning modified content or an error.
type Transformer interface {
	// Transform modifies input, returning modified content or an error.
	Transform(input []byte) ([]byte, error)
}

// TransformerFunc is a [Transformer] that can be represented just by the
// [Transform] method.
type TransformerFunc func(input []byte) ([]byte, error)

// Transform satisfies [Transformer].
func (fn TransformerFunc) Transform(input []byte) ([]byte, error) { return fn(input) }

// Chain runs transformers in order, feeding each the previous output and
// failing fast on the first error. Nil transformers are skipped.
func Chain(transformers ...Transformer) TransformerFunc {
	return func(input []byte) ([]byte, error) {
		var err error
		for _, transformer := range transformers {
			if transformer == nil {
				continue
			}
			if input, err = transformer.Transform(input); err != nil {
				return nil, err
			}
		}
		return input, nil
	}
}
