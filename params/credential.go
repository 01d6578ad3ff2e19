package params

import "fmt"

// ObfuscateCredential applies the protocol's login/password obfuscation:
// every byte inverted. The operation is its own inverse, so the same
// function encodes and decodes. This is obfuscation, not encryption.
func ObfuscateCredential(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = ^b
	}
	return out
}

// NewCredential creates an obfuscated login or password parameter from
// the cleartext value.
func NewCredential(id FieldID, cleartext string) Parameter {
	return Parameter{ID: id, Data: ObfuscateCredential([]byte(cleartext))}
}

// GetCredential returns the deobfuscated cleartext of a login or
// password parameter.
func (b Block) GetCredential(id FieldID) (string, error) {
	p, ok := b.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrMissingField, id)
	}
	return string(ObfuscateCredential(p.Data)), nil
}
