package cipherstorage

// DefaultAlias is the key alias used when the caller gives none
const DefaultAlias = "CIPHERSTORE_DEFAULT_ALIAS"

// ResolveAlias maps an empty service name to DefaultAlias.
// Any other name is used verbatim as the keystore alias.
func ResolveAlias(service string) string {
	if service == "" {
		return DefaultAlias
	}
	return service
}
